package group

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig   = errors.New("invalid group config")
	ErrDuplicateHeater = errors.New("heater already registered")
	ErrUnknownHeater   = errors.New("unknown heater")
	ErrTooFewHeaters   = errors.New("max_active exceeds heater count")
	ErrNotBed          = errors.New("group is not a bed")
	ErrUnknownCommand  = errors.New("unknown command")
)

// ConfigError reports a setup problem for one group. It is fatal to that
// group's configuration only.
type ConfigError struct {
	Group  string
	Heater string // empty when not heater specific
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Heater != "" {
		return fmt.Sprintf("group %s: heater %s: %v", e.Group, e.Heater, e.Err)
	}
	return fmt.Sprintf("group %s: %v", e.Group, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
