// Command heater-share schedules power for groups of heaters that share a
// supply, so that no more than a group's limit are ever on at once.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sweeney/heater-share/internal/config"
	"github.com/sweeney/heater-share/internal/gpio"
	"github.com/sweeney/heater-share/internal/group"
	"github.com/sweeney/heater-share/internal/heater"
	"github.com/sweeney/heater-share/internal/metrics"
	"github.com/sweeney/heater-share/internal/mqtt"
	"github.com/sweeney/heater-share/internal/reactor"
	"github.com/sweeney/heater-share/internal/status"
	"github.com/sweeney/heater-share/internal/web"
)

// firstCycleDelay gives outputs and the broker connection time to settle.
const firstCycleDelay = 500 * time.Millisecond

func main() {
	configPath := flag.String("config", "/etc/heater-share.yaml", "YAML configuration file")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")

	flag.Parse()

	if err := run(*configPath, *broker, *httpAddr, *printConfig); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(configPath, broker, httpAddr string, printConfig bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyOverrides(&cfg, broker, httpAddr)

	if printConfig {
		data, err := config.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("print config: %w", err)
		}
		os.Stdout.Write(data)
		return nil
	}

	startTime := time.Now()
	registry := group.NewRegistry()
	tracker := status.NewTracker(startTime, status.Config{
		ConfigPath:  configPath,
		Broker:      cfg.MQTT.Broker,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		HTTPAddr:    cfg.HTTP,
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
	}, registry)

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:             cfg.MQTT.Broker,
		ClientID:           cfg.MQTT.ClientID,
		Prefix:             cfg.MQTT.TopicPrefix,
		BufferSize:         cfg.MQTT.BufferSize,
		OnConnectionChange: tracker.SetMQTTConnected,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	heaters, outputs, err := buildHeaters(cfg, publisher)
	defer closeOutputs(outputs)
	if err != nil {
		return err
	}

	// A broken group is logged and skipped; the rest still run.
	if err := loadGroups(cfg, registry, lookupIn(heaters)); err != nil {
		log.Printf("groups: %v", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reporter := mqtt.NewReporter(publisher, 64)
	go reporter.Run(ctx)

	timers := reactor.New(time.Now)
	wire(registry, timers, startTime.Add(firstCycleDelay), mqtt.TargetSetter{Pub: publisher}, tracker, metrics.New(promReg), reporter)
	go func() {
		if err := timers.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("reactor: %v", err)
		}
	}()

	if err := publisher.Subscribe(&controller{ctx: ctx, heaters: heaters, registry: registry, now: time.Now}); err != nil {
		log.Printf("mqtt: %v", err)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker, promReg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP)
	}

	log.Printf("started: heaters=%d groups=%d broker=%s heartbeat=%v", len(heaters), len(registry.Groups()), cfg.MQTT.Broker, cfg.Heartbeat)

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runLoop(publisher, publisher, tracker, time.Now, heartbeat, sigCh)

	cancel()
	idleAll(heaters, time.Now())
	return err
}

func applyOverrides(cfg *config.Config, broker, httpAddr string) {
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP = ""
	default:
		cfg.HTTP = httpAddr
	}
}

// buildHeaters creates a heater for every configured output. Outputs
// opened before an error are still returned so the caller can close them.
func buildHeaters(cfg config.Config, pub mqtt.Publisher) (map[string]*heater.Heater, []gpio.Output, error) {
	heaters := make(map[string]*heater.Heater, len(cfg.Heaters))
	var outputs []gpio.Output

	for _, hc := range cfg.Heaters {
		var out gpio.Output
		switch hc.OutputKind() {
		case config.OutputMQTT:
			out = mqtt.NewPowerOutput(pub, hc.Name)
		default:
			line, err := gpio.NewRealOutput(cfg.GPIO.Chip, *hc.Pin, cfg.GPIO.PWMPeriod)
			if err != nil {
				return heaters, outputs, fmt.Errorf("heater %s: %w", hc.Name, err)
			}
			out = line
		}
		outputs = append(outputs, out)
		heaters[hc.Name] = heater.New(hc.Name, out)
	}
	return heaters, outputs, nil
}

func closeOutputs(outputs []gpio.Output) {
	for _, o := range outputs {
		if err := o.Close(); err != nil {
			log.Printf("close output: %v", err)
		}
	}
}

func lookupIn(heaters map[string]*heater.Heater) func(string) (*heater.Heater, bool) {
	return func(name string) (*heater.Heater, bool) {
		h, ok := heaters[name]
		return h, ok
	}
}

// loadGroups creates every valid group in cfg. Invalid groups are left out
// and reported together.
func loadGroups(cfg config.Config, registry *group.Registry, lookup func(string) (*heater.Heater, bool)) error {
	specs, specErr := cfg.Specs()
	return errors.Join(specErr, registry.Load(specs, lookup))
}

// wire attaches observers to every group and schedules its first cycle.
func wire(registry *group.Registry, timers *reactor.Reactor, first time.Time, setter group.TargetSetter, observers ...group.Observer) {
	for _, g := range registry.Groups() {
		for _, o := range observers {
			g.AddObserver(o)
		}
		g.SetTargetSetter(setter)
		timers.RegisterTimer(g.Tick, first)
		cfg := g.Config()
		log.Printf("group %s: %d heaters, max_active=%d cycle=%v mode=%s", g.Name(), len(cfg.Heaters), cfg.MaxActive, cfg.CycleTime, cfg.Mode)
	}
}

func idleAll(heaters map[string]*heater.Heater, now time.Time) {
	for _, h := range heaters {
		if err := h.Idle(now); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}

func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := signalName(s)
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case t := <-heartbeat:
			hbEvent := mqtt.SystemEvent{
				Timestamp: t,
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				log.Printf("heartbeat: uptime=%v groups=%d", snap.Uptime().Truncate(time.Second), len(snap.Groups))
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			// Don't crash on publish failure
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
