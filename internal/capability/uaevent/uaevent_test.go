package uaevent

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
)

func TestTrigger(t *testing.T) {
	space := addrspace.New(addrspace.Options{})
	var got []addrspace.Event
	space.OnEvent(func(ev addrspace.Event) { got = append(got, ev) })

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id, err := Trigger(space, Spec{
		Type:       addrspace.BaseEventType,
		Origin:     addrspace.ServerObject,
		SourceName: "Server",
		Message:    "hello",
		Severity:   500,
		Time:       at,
	})
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("delivered %d events, want 1", len(got))
	}

	ev := got[0]
	if string(ev.EventID) != string(id) {
		t.Error("returned id differs from delivered EventId")
	}
	if ev.SourceNode != addrspace.ServerObject {
		t.Errorf("SourceNode = %s", ev.SourceNode)
	}
	if ev.Message.Text != "hello" || ev.Severity != 500 || ev.SourceName != "Server" {
		t.Errorf("event = %+v", ev)
	}
	if !ev.Time.Equal(at) {
		t.Errorf("Time = %v, want %v", ev.Time, at)
	}
	if space.PendingEvents() != 0 {
		t.Errorf("PendingEvents() = %d, want 0", space.PendingEvents())
	}
}

func TestTriggerErrors(t *testing.T) {
	space := addrspace.New(addrspace.Options{})

	if _, err := Trigger(space, Spec{Type: addrspace.FolderType, Origin: addrspace.ServerObject}); !errors.Is(err, addrspace.ErrTypeDefinitionInvalid) {
		t.Errorf("non-event type: error = %v", err)
	}
	if _, err := Trigger(space, Spec{Type: addrspace.BaseEventType, Origin: addrspace.NumericID(1, 99)}); !errors.Is(err, addrspace.ErrNodeIDUnknown) {
		t.Errorf("unknown origin: error = %v", err)
	}
	if space.PendingEvents() != 0 {
		t.Errorf("PendingEvents() after failed trigger = %d, want 0", space.PendingEvents())
	}
}
