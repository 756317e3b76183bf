package vinput

import (
	"fmt"

	"github.com/nerrad567/gray-logic-ua/internal/eventbridge"
	"github.com/nerrad567/gray-logic-ua/internal/history"
)

var inputFilter = eventbridge.Filter{
	"topic0": "Device",
	"topic1": "IO",
	"topic2": "VirtualInput",
	"port":   eventbridge.Any,
	"active": eventbridge.Any,
}

// handleInput applies a virtual input event. Ports are numbered from one.
func (m *Module) handleInput(ev *eventbridge.Event) error {
	port, err := ev.Int("port")
	if err != nil {
		return err
	}
	active, err := ev.Bool("active")
	if err != nil {
		return err
	}
	if port < 1 || port > MaxPorts {
		return fmt.Errorf("%w: virtual input %d", eventbridge.ErrMalformed, port)
	}

	before, after, ok := m.states.Update(port, func(v *bool) { *v = active })
	if !ok {
		m.logger.Warn("virtual input not cached, ignoring event", "port", port)
		return nil
	}
	m.logger.Debug("virtual input event", "port", port, "active", active)
	if before != after {
		m.record(port, after, history.SourceEvent)
	}
	return nil
}
