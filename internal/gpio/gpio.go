// Package gpio drives heater outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Output drives a single heater line.
type Output interface {
	// Drive sets the power level in [0,1] at or after the given time.
	// Fractional levels are realised with software PWM.
	Drive(at time.Time, power float64) error

	// Close turns the line off and releases GPIO resources.
	Close() error
}

// Defaults for Raspberry Pi style boards.
const (
	DefaultChip      = "gpiochip0"
	DefaultPWMPeriod = 100 * time.Millisecond
)
