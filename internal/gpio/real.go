//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealOutput drives a heater relay or SSR on a GPIO line using the Linux
// GPIO character device. Fractional power is software PWM over period;
// a level change restarts the period immediately.
type RealOutput struct {
	*pwm
	line *gpiocdev.Line
}

// NewRealOutput requests offset on chip as an output, initially off.
func NewRealOutput(chip string, offset int, period time.Duration) (*RealOutput, error) {
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("heater-share"))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d on %s: %w", offset, chip, err)
	}

	return &RealOutput{pwm: newPWM(line, offset, period), line: line}, nil
}

// Close stops pending drives, turns the line off and releases it.
// The pin is reconfigured as input with pull-down (matching Pi boot
// defaults) before closing so the heater stays off across reboots.
func (o *RealOutput) Close() error {
	if !o.halt() {
		return nil
	}

	var errs []error
	if err := o.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("turn off pin %d: %w", o.offset, err))
	}
	if err := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", o.offset, err))
	}
	if err := o.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", o.offset, err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
