package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/heater-share/internal/group"
)

// DefaultBufferSize is how many messages are kept while disconnected.
const DefaultBufferSize = 256

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string // empty: "heater-share-" plus a random suffix
	Prefix   string
	// BufferSize bounds the messages replayed after a reconnect.
	BufferSize int
	// OnConnectionChange is called whenever the connection goes up or down.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client  paho.Client
	topics  Topics
	onState func(bool)

	mu      sync.Mutex
	buf     *ringBuffer
	handler Handler
}

// NewRealPublisher creates a publisher for the given broker. An unreachable
// broker is not fatal: the client keeps retrying and messages are buffered.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, fmt.Errorf("no broker configured")
	}
	if o.ClientID == "" {
		o.ClientID = "heater-share-" + uuid.NewString()[:8]
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}

	p := &RealPublisher{
		topics:  Topics{Prefix: o.Prefix},
		onState: o.OnConnectionChange,
		buf:     newRingBuffer(o.BufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "SHUTDOWN", Reason: "MQTT_DISCONNECT"})
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.System(), string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering until connected", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	log.Printf("mqtt: connected")
	if p.onState != nil {
		p.onState(true)
	}

	p.mu.Lock()
	pending := p.buf.drainAll()
	h := p.handler
	p.mu.Unlock()

	if h != nil {
		if err := p.subscribe(h); err != nil {
			log.Printf("mqtt: %v", err)
		}
	}
	if len(pending) > 0 {
		log.Printf("mqtt: replaying %d buffered messages", len(pending))
	}
	// Handlers run on paho's goroutines, so publish without waiting.
	for _, m := range pending {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	log.Printf("mqtt: connection lost: %v", err)
	if p.onState != nil {
		p.onState(false)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Subscribe routes heater reports and group commands to h. Subscriptions
// are restored after every reconnect.
func (p *RealPublisher) Subscribe(h Handler) error {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		return nil
	}
	return p.subscribe(h)
}

func (p *RealPublisher) subscribe(h Handler) error {
	cb := func(_ paho.Client, msg paho.Message) {
		if err := p.topics.Route(msg.Topic(), msg.Payload(), h); err != nil {
			log.Printf("mqtt: %v", err)
		}
	}
	filters := map[string]byte{
		p.topics.ReportFilter():  0,
		p.topics.CommandFilter(): 1,
	}
	token := p.client.SubscribeMultiple(filters, cb)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// publish sends payload, or buffers it for replay while disconnected.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishCycle sends a group's cycle report.
func (p *RealPublisher) PublishCycle(r group.Report) error {
	payload, err := FormatCyclePayload(r)
	if err != nil {
		return fmt.Errorf("format cycle payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(p.topics.Cycles(), 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(p.topics.System(), 1, event.Retained, payload)
}

// PublishTarget sends a temperature target to a heater's control loop.
func (p *RealPublisher) PublishTarget(heater string, target float64) error {
	payload, err := json.Marshal(TargetPayload{Target: target})
	if err != nil {
		return fmt.Errorf("format target payload: %w", err)
	}
	return p.publish(p.topics.HeaterTarget(heater), 1, true, payload)
}

// PublishPower sends a power level to a remote heater. It does not wait for
// the broker: it is called from the scheduling goroutine. Power levels are
// not buffered, since a replayed level would be stale.
func (p *RealPublisher) PublishPower(heater string, at time.Time, power float64) error {
	if !p.client.IsConnectionOpen() {
		return fmt.Errorf("publish power for %s: %w", heater, ErrNotConnected)
	}
	payload, err := FormatPowerPayload(at, power)
	if err != nil {
		return fmt.Errorf("format power payload: %w", err)
	}
	p.client.Publish(p.topics.HeaterPower(heater), 0, false, payload)
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
