package group

import (
	"fmt"
	"time"
)

// Mode selects how a group shares power between its heaters.
type Mode string

const (
	// ModeTimeSlice lays heaters out in sequential windows every cycle.
	ModeTimeSlice Mode = "timeslice"
	// ModeAdmission lets the K heaters furthest from target run unmodified.
	ModeAdmission Mode = "admission"
)

// Config holds a group's scheduling parameters.
type Config struct {
	CycleTime   time.Duration
	MaxActive   int
	IsBed       bool
	SwitchDelay time.Duration
	MinOnTime   time.Duration
	Mode        Mode
	Shuffle     bool
	Heaters     []string
}

// Defaults used when a group is created without configuration.
const (
	DefaultCycleTime   = time.Second
	DefaultMaxActive   = 1
	DefaultSwitchDelay = 20 * time.Millisecond
)

// DefaultConfig returns the configuration of a lazily created group.
func DefaultConfig() Config {
	return Config{
		CycleTime:   DefaultCycleTime,
		MaxActive:   DefaultMaxActive,
		SwitchDelay: DefaultSwitchDelay,
		Mode:        ModeTimeSlice,
	}
}

// Validate checks parameter ranges. Membership is checked by Group.Validate.
func (c Config) Validate() error {
	if c.CycleTime <= 0 {
		return fmt.Errorf("%w: cycle_time must be > 0, got %v", ErrInvalidConfig, c.CycleTime)
	}
	if c.MaxActive < 1 {
		return fmt.Errorf("%w: max_active must be >= 1, got %d", ErrInvalidConfig, c.MaxActive)
	}
	if c.SwitchDelay < 0 {
		return fmt.Errorf("%w: switching_delay must be >= 0, got %v", ErrInvalidConfig, c.SwitchDelay)
	}
	if c.MinOnTime < 0 {
		return fmt.Errorf("%w: min_on_time must be >= 0, got %v", ErrInvalidConfig, c.MinOnTime)
	}
	switch c.Mode {
	case ModeTimeSlice, ModeAdmission:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	return nil
}
