package addrspace

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateEvent allocates an event of eventType, which must be a subtype of
// BaseEventType. Fill its fields with WriteObjectProperty and deliver it with
// TriggerEvent.
func (s *Space) CreateEvent(eventType NodeID) (NodeID, error) {
	t, ok := s.nodes[eventType]
	if !ok {
		return NodeID{}, fmt.Errorf("%w: %s", ErrNodeIDUnknown, eventType)
	}
	if t.class != ClassObjectType || !s.isSubtypeOf(eventType, BaseEventType) {
		return NodeID{}, fmt.Errorf("%w: %s is not an event type", ErrTypeDefinitionInvalid, eventType)
	}

	id := NumericID(0, s.nextEventID)
	s.nextEventID++
	s.events[id] = &pendingEvent{
		eventType: eventType,
		fields:    map[string]any{FieldEventType: eventType},
	}
	return id, nil
}

// TriggerEvent stamps the event with a fresh EventId, its source node and
// receive time, then hands it to every sink. With deleteEvent set the event
// cannot be triggered again.
func (s *Space) TriggerEvent(event, origin NodeID, deleteEvent bool) ([]byte, error) {
	ev, ok := s.events[event]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventUnknown, event)
	}
	if !s.Exists(origin) {
		return nil, fmt.Errorf("%w: origin %s", ErrNodeIDUnknown, origin)
	}

	id := uuid.New()
	now := s.now()
	out := Event{
		EventID:     id[:],
		EventType:   ev.eventType,
		SourceNode:  origin,
		ReceiveTime: now,
		Fields:      make(map[string]any, len(ev.fields)),
	}
	for k, v := range ev.fields {
		out.Fields[k] = v
	}

	if v, ok := ev.fields[FieldSourceName].(string); ok {
		out.SourceName = v
	}
	switch v := ev.fields[FieldMessage].(type) {
	case LocalizedText:
		out.Message = v
	case string:
		out.Message = Text(v)
	}
	if v, ok := ev.fields[FieldSeverity].(uint16); ok {
		out.Severity = v
	}
	out.Time = now
	if v, ok := ev.fields[FieldTime].(time.Time); ok && !v.IsZero() {
		out.Time = v
	}
	out.Fields[FieldEventID] = out.EventID
	out.Fields[FieldSourceNode] = origin
	out.Fields[FieldReceiveTime] = now

	if deleteEvent {
		delete(s.events, event)
	}
	for _, sink := range s.sinks {
		sink(out)
	}
	return out.EventID, nil
}

// DeleteEvent discards a created event that will not be triggered.
func (s *Space) DeleteEvent(event NodeID) error {
	if _, ok := s.events[event]; !ok {
		return fmt.Errorf("%w: %s", ErrEventUnknown, event)
	}
	delete(s.events, event)
	return nil
}

// PendingEvents returns the number of created events that were not deleted.
func (s *Space) PendingEvents() int {
	return len(s.events)
}
