// Package uaevent creates and triggers protocol events on behalf of
// capability modules. Everything here runs on the server goroutine.
package uaevent

import (
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
)

// Spec describes one event to trigger.
type Spec struct {
	// Type is an event type, a subtype of BaseEventType.
	Type addrspace.NodeID

	// Origin is the node the event is anchored at.
	Origin addrspace.NodeID

	SourceName string
	Message    string
	Severity   uint16

	// Time defaults to now.
	Time time.Time
}

// Trigger creates the event, fills the BaseEventType fields and triggers it.
// The event is deleted after delivery, and also when a step fails.
func Trigger(e addrspace.Engine, s Spec) (eventID []byte, err error) {
	id, err := e.CreateEvent(s.Type)
	if err != nil {
		return nil, fmt.Errorf("creating event: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, e.DeleteEvent(id))
		}
	}()

	at := s.Time
	if at.IsZero() {
		at = time.Now()
	}
	fields := []struct {
		name  string
		value any
	}{
		{addrspace.FieldTime, at},
		{addrspace.FieldSeverity, s.Severity},
		{addrspace.FieldMessage, addrspace.Text(s.Message)},
		{addrspace.FieldSourceName, s.SourceName},
	}
	for _, f := range fields {
		if err := e.WriteObjectProperty(id, addrspace.QualifiedName{Name: f.name}, f.value); err != nil {
			return nil, fmt.Errorf("writing event field %s: %w", f.name, err)
		}
	}

	eventID, err = e.TriggerEvent(id, s.Origin, true)
	if err != nil {
		return nil, fmt.Errorf("triggering event: %w", err)
	}
	return eventID, nil
}
