package gpio

import (
	"errors"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Drive after the output has been closed.
var ErrClosed = errors.New("gpio: output closed")

// lineWriter sets a digital output line.
type lineWriter interface {
	SetValue(v int) error
}

// pwm realises a power level on a line with software PWM. A level change
// restarts the PWM period at once, so a heater switched off is off
// immediately rather than at the next period boundary.
type pwm struct {
	line    lineWriter
	offset  int
	period  time.Duration
	level   atomic.Uint64
	changed chan struct{}

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool

	value int // owned by run

	stop chan struct{}
	done chan struct{}
}

func newPWM(line lineWriter, offset int, period time.Duration) *pwm {
	if period <= 0 {
		period = DefaultPWMPeriod
	}
	p := &pwm{
		line:    line,
		offset:  offset,
		period:  period,
		changed: make(chan struct{}, 1),
		timers:  make(map[*time.Timer]struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Drive sets the PWM level at the given time. Past times apply immediately.
func (p *pwm) Drive(at time.Time, power float64) error {
	power = math.Max(0, math.Min(power, 1))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	delay := time.Until(at)
	if delay <= 0 {
		p.setLevel(power)
		return nil
	}

	// The callback takes p.mu, so t is assigned before it can run.
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.timers, t)
		if !p.closed {
			p.setLevel(power)
		}
	})
	p.timers[t] = struct{}{}
	return nil
}

// setLevel stores power and wakes the PWM loop if it changed.
func (p *pwm) setLevel(power float64) {
	bits := math.Float64bits(power)
	if p.level.Swap(bits) == bits {
		return
	}
	select {
	case p.changed <- struct{}{}:
	default:
	}
}

type waitResult int

const (
	elapsed waitResult = iota
	interrupted
	stopped
)

func (p *pwm) wait(d time.Duration) waitResult {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.stop:
		return stopped
	case <-p.changed:
		return interrupted
	case <-t.C:
		return elapsed
	}
}

func (p *pwm) run() {
	defer close(p.done)

	for {
		on := time.Duration(math.Float64frombits(p.level.Load()) * float64(p.period))

		var r waitResult
		switch {
		case on <= 0:
			p.write(0)
			r = p.wait(p.period)
		case on >= p.period:
			p.write(1)
			r = p.wait(p.period)
		default:
			p.write(1)
			if r = p.wait(on); r == elapsed {
				p.write(0)
				r = p.wait(p.period - on)
			}
		}
		if r == stopped {
			return
		}
	}
}

func (p *pwm) write(v int) {
	if v == p.value {
		return
	}
	if err := p.line.SetValue(v); err != nil {
		log.Printf("gpio: set pin %d to %d: %v", p.offset, v, err)
		return
	}
	p.value = v
}

// halt cancels pending drives and stops the PWM loop. It reports false if
// the loop was already stopped.
func (p *pwm) halt() bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.closed = true
	for t := range p.timers {
		t.Stop()
	}
	p.timers = nil
	p.mu.Unlock()

	close(p.stop)
	<-p.done
	return true
}
