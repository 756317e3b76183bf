package ioports

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/capability/uaevent"
	"github.com/nerrad567/gray-logic-ua/internal/eventbridge"
	"github.com/nerrad567/gray-logic-ua/internal/history"
)

// configService is the configuration service whose changes concern I/O ports.
const configService = "com.axis.Configuration.Legacy.IOControl1.IOPort"

// Configuration keys carried in configuration_changes.
const (
	cfgName      = "Name"
	cfgUsage     = "Usage"
	cfgDirection = "Direction"
	cfgTrig      = "Trig"   // normal state of an input
	cfgActive    = "Active" // normal state of an output
)

var (
	stateFilter = eventbridge.Filter{
		"topic0": "Device",
		"topic1": "IO",
		"port":   eventbridge.Any,
		"state":  eventbridge.Any,
	}
	configFilter = eventbridge.Filter{
		"topic0":  "Device",
		"topic1":  "Configuration",
		"service": configService,
	}
)

// handleState applies a port state event. Only physical ports (topic2 Port
// or OutputPort) are considered.
func (m *Module) handleState(ev *eventbridge.Event) error {
	kind, err := ev.String("topic2")
	if err != nil {
		return err
	}
	if kind != "Port" && kind != "OutputPort" {
		return nil
	}
	index, err := ev.Int("port")
	if err != nil {
		return err
	}
	active, err := ev.Bool("state")
	if err != nil {
		return err
	}
	if index < 0 {
		return fmt.Errorf("%w: port %d", eventbridge.ErrMalformed, index)
	}

	before, after, ok := m.ports.Update(index, func(p *Port) {
		p.State = NextState(active, p.NormalState)
	})
	if !ok {
		m.logger.Warn("port not found, ignoring event", "port", index)
		return nil
	}
	m.logger.Debug("port state event", "port", index, "active", active, "state", after.State)

	if before.State != after.State {
		m.record(index, PropState, after.State.String())
	}
	m.emit(index, idStateEventType, "New state: "+strings.ToUpper(after.State.String()))
	return nil
}

// handleConfig applies a port configuration change.
func (m *Module) handleConfig(ev *eventbridge.Event) error {
	changes, err := ev.String("configuration_changes")
	if err != nil {
		return err
	}
	id, err := ev.String("id")
	if err != nil {
		return err
	}
	index, err := portFromID(id)
	if err != nil {
		return err
	}
	key, value, err := parseChange(changes)
	if err != nil {
		return err
	}

	var (
		prop  string
		apply func(p *Port)
	)
	switch key {
	case cfgName:
		prop, apply = PropName, func(p *Port) { p.Name = value }
	case cfgUsage:
		prop, apply = PropUsage, func(p *Port) { p.Usage = value }
	case cfgDirection:
		dir := Output
		if value == deviceInput {
			dir = Input
		}
		prop, apply = PropDirection, func(p *Port) { p.Direction = dir }
	case cfgTrig, cfgActive:
		// The device reports the active level; the normal state is its opposite.
		normal := Open
		if value == deviceOpen {
			normal = Closed
		}
		prop, apply = PropNormalState, func(p *Port) { p.NormalState = normal }
	default:
		m.logger.Debug("ignoring configuration change", "port", index, "key", key)
		return nil
	}

	before, after, ok := m.ports.Update(index, apply)
	if !ok {
		m.logger.Warn("port not found, ignoring event", "port", index)
		return nil
	}
	m.logger.Debug("port configuration event", "port", index, "key", key, "value", value)

	if before == after {
		return nil
	}
	m.record(index, prop, propertyString(after, prop))

	switch prop {
	case PropDirection:
		m.post(index, func(e addrspace.Engine) error {
			return m.setStateAccessOn(e, m.nodes[index], after)
		})
		m.emit(index, idDirectionEventType, "New direction: "+strings.ToUpper(after.Direction.String()))
	case PropNormalState:
		m.emit(index, idNormalStateEventType, "New normal state: "+strings.ToUpper(after.NormalState.String()))
	}
	return nil
}

// emit hands the triggering of a port event to the server goroutine.
func (m *Module) emit(index int, eventType uint32, message string) {
	spec := uaevent.Spec{
		Type:       m.id(eventType),
		Origin:     m.nodes[index],
		SourceName: portLabel(index),
		Message:    message,
		Severity:   evSeverity,
	}
	m.post(index, func(e addrspace.Engine) error {
		_, err := uaevent.Trigger(e, spec)
		return err
	})
}

// post runs fn on the server goroutine. A refused handoff drops the work.
func (m *Module) post(index int, fn func(e addrspace.Engine) error) {
	if m.host.Poster == nil {
		return
	}
	if _, ok := m.nodes[index]; !ok {
		return
	}
	err := m.host.Poster.Post(func(e addrspace.Engine) {
		if err := fn(e); err != nil {
			m.logger.Error("engine update failed", "port", index, "error", err)
		}
	})
	if err != nil {
		m.host.Metrics.EventDropped(LogicalName, "handoff")
		m.logger.Warn("handoff refused, dropping engine update", "port", index, "error", err)
	}
}

// record stores a cache transition in the state history.
func (m *Module) record(index int, prop, value string) {
	t := history.Transition{
		Module:   LogicalName,
		Instance: portLabel(index),
		Property: prop,
		Value:    value,
		Source:   history.SourceEvent,
		At:       time.Now(),
	}
	if err := m.host.Recorder.RecordTransition(context.Background(), t); err != nil {
		m.logger.Warn("recording transition failed", "port", index, "property", prop, "error", err)
	}
}

func propertyString(p Port, prop string) string {
	switch prop {
	case PropName:
		return p.Name
	case PropUsage:
		return p.Usage
	case PropDirection:
		return p.Direction.String()
	case PropNormalState:
		return p.NormalState.String()
	case PropState:
		return p.State.String()
	}
	return ""
}

// portFromID extracts the port index from an id such as
// "/com/axis/Configuration/Legacy/IOControl/IOPort/2".
func portFromID(id string) (int, error) {
	i := strings.LastIndexByte(id, '/')
	if i < 0 {
		return 0, fmt.Errorf("%w: id %q has no port index", eventbridge.ErrMalformed, id)
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: id %q has no port index", eventbridge.ErrMalformed, id)
	}
	return n, nil
}

// parseChange splits a possibly quoted "Key=Value" change.
func parseChange(s string) (key, value string, err error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return "", "", fmt.Errorf("%w: configuration change %q", eventbridge.ErrMalformed, s)
	}
	return key, value, nil
}
