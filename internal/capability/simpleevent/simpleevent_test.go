package simpleevent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/eventbridge"
	"github.com/nerrad567/gray-logic-ua/internal/plugin"
	"github.com/nerrad567/gray-logic-ua/internal/server"
)

type fixture struct {
	space  *addrspace.Space
	hub    *eventbridge.Hub
	srv    *server.Server
	mod    *Module
	events chan addrspace.Event
	before int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	space := addrspace.New(addrspace.Options{ApplicationURI: "urn:graylogic:test"})
	hub := eventbridge.NewHub(eventbridge.HubOptions{})
	t.Cleanup(hub.Close)
	srv := server.New(space, server.Options{})
	events := make(chan addrspace.Event, 8)
	srv.Subscribe(func(ev addrspace.Event) { events <- ev })

	f := &fixture{space: space, hub: hub, srv: srv, mod: New(), events: events, before: space.NodeCount()}
	if err := f.mod.Construct(context.Background(), plugin.Host{Engine: space, Events: hub, Poster: srv}); err != nil {
		t.Fatalf("Construct() error = %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(srv.Stop)
	return f
}

func (f *fixture) accessedProperty(t *testing.T) bool {
	t.Helper()
	ns, _ := f.space.NamespaceIndex(Namespace)
	var v any
	err := f.srv.Do(context.Background(), func(e addrspace.Engine) error {
		var err error
		v, err = e.ReadObjectProperty(f.mod.Object(), addrspace.QualifiedName{Namespace: ns, Name: AccessedName})
		return err
	})
	if err != nil {
		t.Fatalf("reading Accessed: %v", err)
	}
	b, _ := v.(bool)
	return b
}

func TestAccessTriggersEvent(t *testing.T) {
	f := newFixture(t)
	topic := []string{"VideoSource", "LiveStreamAccessed"}

	f.hub.Publish(topic, map[string]any{"accessed": true})

	var ev addrspace.Event
	select {
	case ev = <-f.events:
	case <-time.After(2 * time.Second):
		t.Fatal("no event triggered")
	}
	if ev.SourceNode != f.mod.Object() || ev.Severity != Severity || ev.Message.Text != "LiveStreamAccessed" || ev.SourceName != ObjectName {
		t.Errorf("event = %+v", ev)
	}
	if ev.EventType != addrspace.BaseEventType {
		t.Errorf("EventType = %s", ev.EventType)
	}
	if !f.accessedProperty(t) || !f.mod.Accessed() {
		t.Error("Accessed not set after access event")
	}

	// End of access: property cleared, no event.
	f.hub.Publish(topic, map[string]any{"accessed": false})
	deadline := time.Now().Add(2 * time.Second)
	for f.accessedProperty(t) {
		if time.Now().After(deadline) {
			t.Fatal("Accessed still set")
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case extra := <-f.events:
		t.Errorf("unexpected event %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnload(t *testing.T) {
	f := newFixture(t)
	if got := f.mod.Name(); got != ModuleName {
		t.Errorf("Name() = %q", got)
	}

	f.srv.Stop()
	if err := f.mod.Destruct(); err != nil {
		t.Fatalf("Destruct() error = %v", err)
	}
	if got := f.hub.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", got)
	}
	if got := f.space.NodeCount(); got != f.before {
		t.Errorf("NodeCount() = %d, want %d", got, f.before)
	}
	if got := f.mod.Name(); got != plugin.NotInitialized(ModuleName) {
		t.Errorf("Name() = %q", got)
	}
}

func TestConstructNeedsPoster(t *testing.T) {
	space := addrspace.New(addrspace.Options{})
	hub := eventbridge.NewHub(eventbridge.HubOptions{})
	defer hub.Close()

	err := New().Construct(context.Background(), plugin.Host{Engine: space, Events: hub})
	if !errors.Is(err, plugin.ErrIncompleteHost) {
		t.Errorf("Construct() error = %v, want ErrIncompleteHost", err)
	}
}
