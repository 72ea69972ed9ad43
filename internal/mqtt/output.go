package mqtt

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/sweeney/heater-share/internal/group"
	"github.com/sweeney/heater-share/internal/heater"
)

// PowerOutput drives a heater whose switch sits behind the broker.
type PowerOutput struct {
	pub  Publisher
	name string
}

// NewPowerOutput creates an output publishing power levels for heater name.
func NewPowerOutput(pub Publisher, name string) *PowerOutput {
	return &PowerOutput{pub: pub, name: name}
}

// Drive publishes the level and the time it takes effect.
func (o *PowerOutput) Drive(at time.Time, power float64) error {
	return o.pub.PublishPower(o.name, at, power)
}

// Close is a no-op; the publisher is closed by its owner.
func (o *PowerOutput) Close() error {
	return nil
}

// TargetSetter forwards bed temperature targets to each heater's control loop.
type TargetSetter struct {
	Pub Publisher
}

// SetTarget publishes the new target for h.
func (s TargetSetter) SetTarget(_ context.Context, h *heater.Heater, target float64) error {
	return s.Pub.PublishTarget(h.Name(), target)
}

// Reporter publishes cycle reports off the scheduling goroutine. When the
// queue is full, reports are dropped rather than delaying the next cycle.
type Reporter struct {
	pub     Publisher
	queue   chan group.Report
	dropped atomic.Int64
}

// NewReporter creates a Reporter with room for size pending reports.
func NewReporter(pub Publisher, size int) *Reporter {
	if size < 1 {
		size = 1
	}
	return &Reporter{pub: pub, queue: make(chan group.Report, size)}
}

// CycleComplete queues r for publishing. It never blocks.
func (r *Reporter) CycleComplete(rep group.Report) {
	select {
	case r.queue <- rep:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Printf("mqtt: report queue full, dropped %d cycle reports", n)
		}
	}
}

// Dropped returns how many reports were discarded.
func (r *Reporter) Dropped() int64 {
	return r.dropped.Load()
}

// Run publishes queued reports until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rep := <-r.queue:
			// Don't crash on publish failure
			if err := r.pub.PublishCycle(rep); err != nil {
				log.Printf("mqtt: publish cycle for group %s: %v", rep.Group, err)
			}
		}
	}
}
