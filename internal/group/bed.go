package group

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/heater-share/internal/heater"
)

// Bed command names. The M-code aliases match common printer firmware.
const (
	CmdSetBedTemp        = "SET_BED_TEMP"
	CmdSetBedTempAndWait = "SET_BED_TEMP_AND_WAIT"
	aliasSetBedTemp      = "M140"
	aliasSetBedTempWait  = "M190"
)

// Wait settings for SET_BED_TEMP_AND_WAIT.
const (
	WaitTolerance = 1.0 // degrees
	WaitPoll      = time.Second
)

// TargetSetter dispatches a temperature target to a heater's control loop.
type TargetSetter interface {
	SetTarget(ctx context.Context, h *heater.Heater, target float64) error
}

// SetTargetSetter sets where bed commands send temperature targets.
func (g *Group) SetTargetSetter(s TargetSetter) {
	g.mu.Lock()
	g.setter = s
	g.mu.Unlock()
}

// IsBed reports whether the group accepts bed commands.
func (g *Group) IsBed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg.IsBed
}

// SetBedTemp sends temp to every member. With wait, only the last member
// dispatched is waited on, so all members heat up together.
func (g *Group) SetBedTemp(ctx context.Context, temp float64, wait bool) error {
	g.mu.Lock()
	bed := g.cfg.IsBed
	setter := g.setter
	members := append([]*heater.Heater(nil), g.heaters...)
	g.mu.Unlock()

	if !bed {
		return fmt.Errorf("group %s: %w", g.name, ErrNotBed)
	}

	for i, h := range members {
		if setter != nil {
			if err := setter.SetTarget(ctx, h, temp); err != nil {
				return fmt.Errorf("group %s: set %s to %.1f: %w", g.name, h.Name(), temp, err)
			}
		}
		h.SetTarget(temp)

		if wait && i == len(members)-1 {
			return h.WaitForTemperature(ctx, WaitTolerance, WaitPoll)
		}
	}
	return nil
}

// Command runs a named bed command.
func (g *Group) Command(ctx context.Context, name string, temp float64) error {
	switch strings.ToUpper(name) {
	case CmdSetBedTemp, aliasSetBedTemp:
		return g.SetBedTemp(ctx, temp, false)
	case CmdSetBedTempAndWait, aliasSetBedTempWait:
		return g.SetBedTemp(ctx, temp, true)
	default:
		return fmt.Errorf("group %s: %w: %s", g.name, ErrUnknownCommand, name)
	}
}
