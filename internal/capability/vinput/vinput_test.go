package vinput

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/eventbridge"
	"github.com/nerrad567/gray-logic-ua/internal/history"
	"github.com/nerrad567/gray-logic-ua/internal/plugin"
	"github.com/nerrad567/gray-logic-ua/internal/server"
	"github.com/nerrad567/gray-logic-ua/internal/vapix"
)

// fakeDevice serves the virtual input API and keeps its own input states.
type fakeDevice struct {
	mu       sync.Mutex
	schema   string
	active   map[int]bool
	requests []string
	fail     bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{schema: schemaXML, active: map[int]bool{}}
}

func (d *fakeDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if user, _, ok := r.BasicAuth(); !ok || user != "vinput" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, r.URL.Path+"?"+r.URL.RawQuery)

	w.Header().Set("Content-Type", "text/xml")
	switch r.URL.Path {
	case "/" + endpointSchema:
		fmt.Fprint(w, d.schema)
	case "/" + endpointActivate, "/" + endpointDeactivate:
		if d.fail {
			fmt.Fprint(w, errorXML)
			return
		}
		port, _ := strconv.Atoi(r.URL.Query().Get("port"))
		want := r.URL.Path == "/"+endpointActivate
		changed := d.active[port] != want
		d.active[port] = want
		tag := "DeactivateSuccess"
		if want {
			tag = "ActivateSuccess"
		}
		fmt.Fprintf(w, "<VirtualInputResponse><Success><%s><StateChanged>%t</StateChanged></%s></Success></VirtualInputResponse>", tag, changed, tag)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (d *fakeDevice) lastRequest() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.requests) == 0 {
		return ""
	}
	return d.requests[len(d.requests)-1]
}

func (d *fakeDevice) setFail(v bool) {
	d.mu.Lock()
	d.fail = v
	d.mu.Unlock()
}

type mockRecorder struct {
	mu          sync.Mutex
	transitions []history.Transition
}

func (m *mockRecorder) RecordTransition(_ context.Context, t history.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, t)
	return nil
}

func (m *mockRecorder) all() []history.Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Transition(nil), m.transitions...)
}

type fixture struct {
	space  *addrspace.Space
	hub    *eventbridge.Hub
	srv    *server.Server
	dev    *fakeDevice
	rec    *mockRecorder
	mod    *Module
	before int
	ns     uint16
}

func newHost(t *testing.T, dev *fakeDevice) (plugin.Host, *addrspace.Space, *eventbridge.Hub) {
	t.Helper()
	ts := httptest.NewServer(dev)
	t.Cleanup(ts.Close)

	space := addrspace.New(addrspace.Options{ApplicationURI: "urn:graylogic:test"})
	hub := eventbridge.NewHub(eventbridge.HubOptions{})
	t.Cleanup(hub.Close)

	conn := vapix.NewConnector(ts.URL, time.Second, vapix.StaticCredentials{
		CredentialsDomain: {Username: "vinput", Password: "secret"},
	})
	return plugin.Host{Engine: space, Events: hub, Device: conn}, space, hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := newFakeDevice()
	h, space, hub := newHost(t, dev)
	srv := server.New(space, server.Options{})

	f := &fixture{space: space, hub: hub, srv: srv, dev: dev, rec: &mockRecorder{}, mod: New(), before: space.NodeCount()}
	h.Poster = srv
	h.Recorder = f.rec

	if err := f.mod.Construct(context.Background(), h); err != nil {
		t.Fatalf("Construct() error = %v", err)
	}
	ns, ok := space.NamespaceIndex(Namespace)
	if !ok {
		t.Fatal("namespace not registered")
	}
	f.ns = ns

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(srv.Stop)
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConstruct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if got := f.mod.Name(); got != ModuleName {
		t.Errorf("Name() = %q", got)
	}
	if got := len(f.mod.States()); got != MaxPorts {
		t.Errorf("cached inputs = %d, want %d", got, MaxPorts)
	}
	if got := f.mod.Subscriptions(); got != 1 {
		t.Errorf("Subscriptions() = %d, want 1", got)
	}

	// The schema query picked the highest major version.
	if err := f.srv.Write(ctx, InputID(f.ns, 1), true); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := f.dev.lastRequest(); got != "/virtualinput/activate.cgi?port=1&schemaversion=2" {
		t.Errorf("request = %q", got)
	}

	info, err := f.srv.Node(ctx, InputID(f.ns, 64))
	if err != nil {
		t.Fatalf("Node(VirtualInput-64) error = %v", err)
	}
	if info.BrowseName.Name != "VirtualInput-64" || info.AccessLevel != addrspace.AccessReadWrite || info.DataType != addrspace.BooleanType {
		t.Errorf("VirtualInput-64 = %+v", info)
	}
	if _, err := f.srv.Node(ctx, InputID(f.ns, 65)); !errors.Is(err, addrspace.ErrNodeIDUnknown) {
		t.Errorf("Node(VirtualInput-65) error = %v, want ErrNodeIDUnknown", err)
	}
}

func TestWriteThenRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := InputID(f.ns, 5)

	if err := f.srv.Write(ctx, id, true); err != nil {
		t.Fatalf("Write(true) error = %v", err)
	}
	got, err := f.srv.Read(ctx, id)
	if err != nil || got != true {
		t.Fatalf("Read() = %v, %v, want true", got, err)
	}
	if got := f.dev.lastRequest(); got != "/virtualinput/activate.cgi?port=5&schemaversion=2" {
		t.Errorf("request = %q, want no duration", got)
	}

	// Writing the same state is accepted but changes nothing.
	if err := f.srv.Write(ctx, id, true); err != nil {
		t.Fatalf("second Write(true) error = %v", err)
	}
	if got := len(f.rec.all()); got != 1 {
		t.Errorf("recorded %d transitions, want 1", got)
	}

	if err := f.srv.Write(ctx, id, "false"); err != nil {
		t.Fatalf("Write(\"false\") error = %v", err)
	}
	if got, _ := f.srv.Read(ctx, id); got != false {
		t.Errorf("Read() after deactivate = %v", got)
	}

	recs := f.rec.all()
	if len(recs) != 2 || recs[1].Source != history.SourceWrite || recs[1].Instance != "VirtualInput-5" || recs[1].Value != "false" {
		t.Errorf("transitions = %+v", recs)
	}
}

func TestWriteDeviceError(t *testing.T) {
	f := newFixture(t)
	f.dev.setFail(true)

	err := f.srv.Write(context.Background(), InputID(f.ns, 2), true)
	if !errors.Is(err, addrspace.ErrCommunication) {
		t.Fatalf("Write() error = %v, want ErrCommunication", err)
	}
	if !errors.Is(err, vapix.ErrAPI) {
		t.Errorf("Write() error = %v, want the device error wrapped", err)
	}
	if f.mod.States()[2] {
		t.Error("failed write changed the cache")
	}
}

func TestMethods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	object, activate, deactivate := f.mod.Object()

	tests := []struct {
		name        string
		method      addrspace.NodeID
		input       []any
		wantChanged bool
		wantRequest string
		wantErr     error
	}{
		{"activate with duration", activate, []any{3, 10}, true, "/virtualinput/activate.cgi?duration=10&port=3&schemaversion=2", nil},
		{"activate again", activate, []any{3, -1}, false, "/virtualinput/activate.cgi?port=3&schemaversion=2", nil},
		{"deactivate", deactivate, []any{3}, true, "/virtualinput/deactivate.cgi?port=3&schemaversion=2", nil},
		{"port zero", activate, []any{0, -1}, false, "", addrspace.ErrOutOfRange},
		{"port above range", deactivate, []any{65}, false, "", addrspace.ErrOutOfRange},
		{"missing duration", activate, []any{1}, false, "", addrspace.ErrArgumentsMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.dev.lastRequest()
			out, err := f.srv.Call(ctx, object, tt.method, tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Call() error = %v, want %v", err, tt.wantErr)
				}
				if got := f.dev.lastRequest(); got != before {
					t.Errorf("rejected call reached the device: %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Call() error = %v", err)
			}
			if len(out) != 1 || out[0] != tt.wantChanged {
				t.Errorf("Call() = %v, want [%v]", out, tt.wantChanged)
			}
			if got := f.dev.lastRequest(); got != tt.wantRequest {
				t.Errorf("request = %q, want %q", got, tt.wantRequest)
			}
		})
	}
	if f.mod.States()[3] {
		t.Error("input 3 still cached active after Deactivate")
	}
}

func TestInputEvents(t *testing.T) {
	f := newFixture(t)
	topic := []string{"Device", "IO", "VirtualInput"}

	f.hub.Publish(topic, map[string]any{"port": 7, "active": true})
	waitFor(t, "input 7 active", func() bool { return f.mod.States()[7] })

	got, err := f.srv.Read(context.Background(), InputID(f.ns, 7))
	if err != nil || got != true {
		t.Errorf("Read() = %v, %v", got, err)
	}

	// Out of range and malformed events leave the cache alone.
	f.hub.Publish(topic, map[string]any{"port": 0, "active": true})
	f.hub.Publish(topic, map[string]any{"port": 8, "active": "yes please"})
	f.hub.Publish(topic, map[string]any{"port": 7, "active": false})
	waitFor(t, "input 7 inactive", func() bool { return !f.mod.States()[7] })
	if f.mod.States()[8] {
		t.Error("malformed event changed input 8")
	}

	recs := f.rec.all()
	if len(recs) != 2 || recs[0].Source != history.SourceEvent {
		t.Errorf("transitions = %+v", recs)
	}
}

func TestUnload(t *testing.T) {
	f := newFixture(t)

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
	if got := len(f.mod.States()); got != 0 {
		t.Errorf("cache holds %d inputs after Destruct", got)
	}
	if got := f.mod.Name(); got != plugin.NotInitialized(ModuleName) {
		t.Errorf("Name() = %q", got)
	}
}

func TestConstructFailures(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		wantErr error
	}{
		{"device error", errorXML, vapix.ErrAPI},
		{"no schema version", `<VirtualInputResponse><Success/></VirtualInputResponse>`, vapix.ErrMalformedResponse},
		{"bad major version", `<VirtualInputResponse><Success><SchemaVersion><MajorVersion>x</MajorVersion></SchemaVersion></Success></VirtualInputResponse>`, vapix.ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			dev.schema = tt.schema
			h, space, hub := newHost(t, dev)
			before := space.NodeCount()

			m := New()
			if err := m.Construct(context.Background(), h); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Construct() error = %v, want %v", err, tt.wantErr)
			}
			if got := space.NodeCount(); got != before {
				t.Errorf("NodeCount() = %d, want %d", got, before)
			}
			if got := hub.SubscriptionCount(); got != 0 {
				t.Errorf("SubscriptionCount() = %d, want 0", got)
			}
		})
	}
}
