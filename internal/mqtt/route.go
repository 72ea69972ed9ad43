package mqtt

import (
	"fmt"
	"strings"
)

// Handler receives parsed inbound messages.
type Handler interface {
	HeaterReport(heater string, r HeaterReport)
	GroupCommand(group string, c Command)
}

// Route parses an inbound message and hands it to h. Topics outside the
// report and command trees are rejected.
func (t Topics) Route(topic string, payload []byte, h Handler) error {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/")
	if !ok {
		return fmt.Errorf("route %s: unexpected prefix", topic)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] == "" {
		return fmt.Errorf("route %s: unexpected topic", topic)
	}

	switch {
	case parts[0] == "heaters" && parts[2] == "report":
		r, err := ParseReport(payload)
		if err != nil {
			return fmt.Errorf("heater %s: %w", parts[1], err)
		}
		h.HeaterReport(parts[1], r)
	case parts[0] == "groups" && parts[2] == "command":
		c, err := ParseCommand(payload)
		if err != nil {
			return fmt.Errorf("group %s: %w", parts[1], err)
		}
		h.GroupCommand(parts[1], c)
	default:
		return fmt.Errorf("route %s: unexpected topic", topic)
	}
	return nil
}
