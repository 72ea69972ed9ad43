package main

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/heater-share/internal/group"
	"github.com/sweeney/heater-share/internal/heater"
	"github.com/sweeney/heater-share/internal/mqtt"
)

// controller applies inbound MQTT messages to heaters and groups.
type controller struct {
	ctx      context.Context
	heaters  map[string]*heater.Heater
	registry *group.Registry
	now      func() time.Time
}

// HeaterReport records what a heater's control loop asks for.
func (c *controller) HeaterReport(name string, r mqtt.HeaterReport) {
	h, ok := c.heaters[name]
	if !ok {
		log.Printf("report for unknown heater %s", name)
		return
	}
	if r.Temp != nil || r.Target != nil {
		current, target := h.Temperature()
		if r.Temp != nil {
			current = *r.Temp
		}
		if r.Target != nil {
			target = *r.Target
		}
		h.ReportTemperature(current, target)
	}
	if r.Duty != nil {
		if err := h.SetDuty(c.now(), *r.Duty); err != nil {
			log.Printf("report: %v", err)
		}
	}
}

// GroupCommand runs a bed command. Commands may wait for temperature, so
// they run off the MQTT client's goroutine.
func (c *controller) GroupCommand(name string, cmd mqtt.Command) {
	g, ok := c.registry.Lookup(name)
	if !ok {
		log.Printf("command %s for unknown group %s", cmd.Command, name)
		return
	}
	go func() {
		if err := g.Command(c.ctx, cmd.Command, cmd.Temp); err != nil {
			log.Printf("command %s: %v", cmd.Command, err)
			return
		}
		log.Printf("group %s: %s %.1f done", name, cmd.Command, cmd.Temp)
	}()
}
