package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/audit"
	"github.com/nerrad567/gray-logic-ua/internal/auth"
	"github.com/nerrad567/gray-logic-ua/internal/capability/uaevent"
	"github.com/nerrad567/gray-logic-ua/internal/history"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ua/internal/metrics"
	"github.com/nerrad567/gray-logic-ua/internal/plugin"
	"github.com/nerrad567/gray-logic-ua/internal/server"
)

const (
	testSecret = "test-secret-key-at-least-32-characters-long"
	testNS     = "urn:graylogic:test:lamp"
)

type staticModules []plugin.ModuleInfo

func (m staticModules) Active() []plugin.ModuleInfo { return m }

// mockHistory records the last query.
type mockHistory struct {
	mu      sync.Mutex
	last    history.Query
	entries []history.Entry
	err     error
}

func (m *mockHistory) GetHistory(_ context.Context, q history.Query) ([]history.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = q
	return m.entries, m.err
}

func (m *mockHistory) query() history.Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// mockAudit records the last filter.
type mockAudit struct {
	mu   sync.Mutex
	last audit.Filter
}

func (m *mockAudit) List(_ context.Context, f audit.Filter) (*audit.ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = f
	return &audit.ListResult{
		Entries: []audit.Entry{{ID: "a1", Action: "activate", Module: "ioports"}},
		Total:   1,
		Limit:   f.Limit,
		Offset:  f.Offset,
	}, nil
}

func (m *mockAudit) filter() audit.Filter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

type fixture struct {
	api     *Server
	ua      *server.Server
	http    *httptest.Server
	ns      uint16
	history *mockHistory
	audit   *mockAudit
}

func (f *fixture) lamp() addrspace.NodeID   { return addrspace.StringID(f.ns, "Lamp") }
func (f *fixture) on() addrspace.NodeID     { return addrspace.StringID(f.ns, "Lamp.On") }
func (f *fixture) model() addrspace.NodeID  { return addrspace.StringID(f.ns, "Lamp.Model") }
func (f *fixture) toggle() addrspace.NodeID { return addrspace.StringID(f.ns, "Lamp.Toggle") }

// buildLamp adds an object with a writable switch, a read-only model
// property and a Toggle method that inverts its input.
func buildLamp(e addrspace.Engine) error {
	ns := e.AddNamespace(testNS)
	lamp, err := e.AddObjectNode(addrspace.ObjectNode{
		RequestedID:   addrspace.StringID(ns, "Lamp"),
		Parent:        addrspace.ObjectsFolder,
		ReferenceType: addrspace.Organizes,
		BrowseName:    addrspace.QualifiedName{Namespace: ns, Name: "Lamp"},
		EventNotifier: addrspace.SubscribeToEvents,
	})
	if err != nil {
		return err
	}
	if _, err := e.AddVariableNode(addrspace.VariableNode{
		RequestedID: addrspace.StringID(ns, "Lamp.On"),
		Parent:      lamp,
		BrowseName:  addrspace.QualifiedName{Namespace: ns, Name: "On"},
		DataType:    addrspace.BooleanType,
		Value:       false,
		AccessLevel: addrspace.AccessReadWrite,
	}); err != nil {
		return err
	}
	if _, err := e.AddVariableNode(addrspace.VariableNode{
		RequestedID:    addrspace.StringID(ns, "Lamp.Model"),
		Parent:         lamp,
		ReferenceType:  addrspace.HasProperty,
		BrowseName:     addrspace.QualifiedName{Namespace: ns, Name: "Model"},
		TypeDefinition: addrspace.PropertyType,
		DataType:       addrspace.StringType,
		Value:          "GL-100",
		AccessLevel:    addrspace.AccessRead,
	}); err != nil {
		return err
	}
	_, err = e.AddMethodNode(addrspace.MethodNode{
		RequestedID: addrspace.StringID(ns, "Lamp.Toggle"),
		Parent:      lamp,
		BrowseName:  addrspace.QualifiedName{Namespace: ns, Name: "Toggle"},
		InputArguments: []addrspace.Argument{
			{Name: "state", DataType: addrspace.BooleanType},
		},
		OutputArguments: []addrspace.Argument{
			{Name: "inverted", DataType: addrspace.BooleanType},
		},
		Callback: func(_ context.Context, _ addrspace.NodeID, input []any) ([]any, error) {
			return []any{!input[0].(bool)}, nil
		},
	})
	return err
}

func newFixture(t *testing.T, metricsHandler http.Handler) *fixture {
	t.Helper()
	ctx := context.Background()

	space := addrspace.New(addrspace.Options{ApplicationURI: "urn:graylogic:test"})
	ua := server.New(space, server.Options{})
	if err := ua.Start(ctx); err != nil {
		t.Fatalf("server Start() error = %v", err)
	}
	t.Cleanup(ua.Stop)
	if err := ua.Do(ctx, buildLamp); err != nil {
		t.Fatalf("building address space: %v", err)
	}
	ns, _ := space.NamespaceIndex(testNS)

	hist := &mockHistory{}
	aud := &mockAudit{}
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1"},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testSecret, AccessTokenTTL: 15},
		},
		Logger: log,
		Nodes:  ua,
		Modules: staticModules{
			{Name: "ioports", DisplayName: "opc-ioports-plugin", Loader: "builtin", Source: "libopcua-ioports", State: "active"},
		},
		History: hist,
		Audit:   aud,
		Metrics: metricsHandler,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	hubCtx, cancel := context.WithCancel(ctx)
	go srv.hub.Run(hubCtx)
	t.Cleanup(cancel)

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	return &fixture{api: srv, ua: ua, http: ts, ns: ns, history: hist, audit: aud}
}

func nodePath(id addrspace.NodeID, suffix string) string {
	return "/api/v1/nodes/" + url.PathEscape(id.String()) + suffix
}

func token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken("tester", role, testSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	return tok
}

// do sends a request and decodes a JSON response into out when non-nil.
func (f *fixture) do(t *testing.T, method, path, bearer, body string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s: %v", method, path, err)
		}
	}
	return resp
}

func TestNewRequiresDeps(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Nodes: &server.Server{}, Modules: staticModules{}}},
		{"no nodes", Deps{Logger: log, Modules: staticModules{}}},
		{"no modules", Deps{Logger: log, Nodes: &server.Server{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestHealthAndModules(t *testing.T) {
	f := newFixture(t, nil)

	var health map[string]any
	resp := f.do(t, http.MethodGet, "/health", "", "", &health)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	if health["status"] != "ok" || health["version"] != "test" || health["modules"] != float64(1) {
		t.Errorf("health = %v", health)
	}

	var modules struct {
		Modules []plugin.ModuleInfo `json:"modules"`
		Count   int                 `json:"count"`
	}
	f.do(t, http.MethodGet, "/api/v1/modules", "", "", &modules)
	if modules.Count != 1 || modules.Modules[0].Name != "ioports" || modules.Modules[0].Loader != "builtin" {
		t.Errorf("modules = %+v", modules)
	}
}

func TestGetNode(t *testing.T) {
	f := newFixture(t, nil)

	var on nodeResponse
	resp := f.do(t, http.MethodGet, nodePath(f.on(), ""), "", "", &on)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if on.Class != "Variable" || on.DataType != addrspace.BooleanType.String() {
		t.Errorf("node = %+v", on)
	}
	if on.Access == nil || !on.Access.Read || !on.Access.Write {
		t.Errorf("access = %+v", on.Access)
	}

	var toggle nodeResponse
	f.do(t, http.MethodGet, nodePath(f.toggle(), ""), "", "", &toggle)
	if toggle.Class != "Method" || len(toggle.InputArguments) != 1 || toggle.InputArguments[0].Name != "state" {
		t.Errorf("method = %+v", toggle)
	}
	if toggle.Access != nil {
		t.Error("methods should carry no access level")
	}

	var lamp nodeResponse
	f.do(t, http.MethodGet, nodePath(f.lamp(), ""), "", "", &lamp)
	if !lamp.EventNotifier {
		t.Error("Lamp should accept event subscriptions")
	}
}

func TestNodeErrors(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"unknown node", nodePath(addrspace.StringID(f.ns, "Nope"), ""), http.StatusNotFound, "BadNodeIdUnknown"},
		{"invalid id", "/api/v1/nodes/bogus", http.StatusBadRequest, ""},
		{"unknown value", nodePath(addrspace.StringID(f.ns, "Nope"), "/value"), http.StatusNotFound, "BadNodeIdUnknown"},
		{"unknown references", nodePath(addrspace.StringID(f.ns, "Nope"), "/references"), http.StatusNotFound, "BadNodeIdUnknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Error
			resp := f.do(t, http.MethodGet, tt.path, "", "", &e)
			if resp.StatusCode != tt.wantStatus || e.Status != tt.wantStatus {
				t.Errorf("status = %d (%+v), want %d", resp.StatusCode, e, tt.wantStatus)
			}
			if e.StatusCode != tt.wantCode {
				t.Errorf("status_code = %q, want %q", e.StatusCode, tt.wantCode)
			}
		})
	}
}

func TestBrowse(t *testing.T) {
	f := newFixture(t, nil)

	var out struct {
		References []referenceResponse `json:"references"`
		Count      int                 `json:"count"`
	}
	f.do(t, http.MethodGet, nodePath(f.lamp(), "/references"), "", "", &out)

	targets := map[string]string{}
	for _, r := range out.References {
		if r.IsForward {
			targets[r.Target] = r.ReferenceType
		}
	}
	if targets[f.on().String()] != addrspace.HasComponent.String() {
		t.Errorf("On reference = %q", targets[f.on().String()])
	}
	if targets[f.model().String()] != addrspace.HasProperty.String() {
		t.Errorf("Model reference = %q", targets[f.model().String()])
	}
	if _, ok := targets[f.toggle().String()]; !ok {
		t.Error("Toggle missing from references")
	}
}

func TestWriteValue(t *testing.T) {
	f := newFixture(t, nil)
	operator := token(t, auth.RoleOperator)

	tests := []struct {
		name       string
		id         addrspace.NodeID
		bearer     string
		body       string
		wantStatus int
	}{
		{"no token", f.on(), "", `{"value":true}`, http.StatusUnauthorized},
		{"bad token", f.on(), "garbage", `{"value":true}`, http.StatusUnauthorized},
		{"viewer", f.on(), token(t, auth.RoleViewer), `{"value":true}`, http.StatusForbidden},
		{"missing value", f.on(), operator, `{}`, http.StatusBadRequest},
		{"bad json", f.on(), operator, `{`, http.StatusBadRequest},
		{"read only", f.model(), operator, `{"value":"X"}`, http.StatusForbidden},
		{"unknown node", addrspace.StringID(f.ns, "Nope"), operator, `{"value":true}`, http.StatusNotFound},
		{"operator", f.on(), operator, `{"value":true}`, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPut, nodePath(tt.id, "/value"), tt.bearer, tt.body, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}

	var got struct {
		Value any `json:"value"`
	}
	f.do(t, http.MethodGet, nodePath(f.on(), "/value"), "", "", &got)
	if got.Value != true {
		t.Errorf("value after write = %v, want true", got.Value)
	}
}

func TestCallMethod(t *testing.T) {
	f := newFixture(t, nil)
	operator := token(t, auth.RoleOperator)
	path := nodePath(f.lamp(), "/methods/"+url.PathEscape(f.toggle().String()))

	var out struct {
		Outputs []any `json:"outputs"`
	}
	resp := f.do(t, http.MethodPost, path, operator, `{"arguments":[true]}`, &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(out.Outputs) != 1 || out.Outputs[0] != false {
		t.Errorf("outputs = %v, want [false]", out.Outputs)
	}

	tests := []struct {
		name       string
		bearer     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"viewer", token(t, auth.RoleViewer), `{"arguments":[true]}`, http.StatusForbidden, ""},
		{"no body", operator, "", http.StatusBadRequest, "BadArgumentsMissing"},
		{"too many", operator, `{"arguments":[true,false]}`, http.StatusBadRequest, "BadTooManyArguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Error
			resp := f.do(t, http.MethodPost, path, tt.bearer, tt.body, &e)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if e.StatusCode != tt.wantCode {
				t.Errorf("status_code = %q, want %q", e.StatusCode, tt.wantCode)
			}
		})
	}
}

func TestHistoryAndAudit(t *testing.T) {
	f := newFixture(t, nil)
	f.history.mu.Lock()
	f.history.entries = []history.Entry{{ID: 1, Transition: history.Transition{Module: "ioports", Instance: "3", Property: "State", Value: "Closed"}}}
	f.history.mu.Unlock()

	var hist struct {
		Entries []history.Entry `json:"entries"`
		Count   int             `json:"count"`
	}
	resp := f.do(t, http.MethodGet, "/api/v1/history?module=ioports&instance=3&limit=5", "", "", &hist)
	if resp.StatusCode != http.StatusOK || hist.Count != 1 || hist.Entries[0].Value != "Closed" {
		t.Errorf("history = %d %+v", resp.StatusCode, hist)
	}
	if q := f.history.query(); q.Module != "ioports" || q.Instance != "3" || q.Limit != 5 {
		t.Errorf("history query = %+v", q)
	}

	var list audit.ListResult
	f.do(t, http.MethodGet, "/api/v1/audit?module=ioports&loader=builtin&limit=10&offset=20", "", "", &list)
	if list.Total != 1 || list.Entries[0].Action != "activate" {
		t.Errorf("audit = %+v", list)
	}
	if fl := f.audit.filter(); fl.Module != "ioports" || fl.Loader != "builtin" || fl.Limit != 10 || fl.Offset != 20 {
		t.Errorf("audit filter = %+v", fl)
	}

	bad := []string{
		"/api/v1/history?limit=-1",
		"/api/v1/history?instance=3",
		"/api/v1/audit?offset=x",
	}
	for _, p := range bad {
		if resp := f.do(t, http.MethodGet, p, "", "", nil); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", p, resp.StatusCode)
		}
	}
}

func TestHistoryFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.history.mu.Lock()
	f.history.err = errors.New("disk gone")
	f.history.mu.Unlock()

	if resp := f.do(t, http.MethodGet, "/api/v1/history", "", "", nil); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}

	bare, err := New(Deps{
		Logger:  logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test"),
		Nodes:   f.ua,
		Modules: staticModules{},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	router := bare.buildRouter()
	for _, p := range []string{"/api/v1/history", "/api/v1/audit"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503", p, rec.Code)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, metrics.New().Handler())
	resp := f.do(t, http.MethodGet, "/metrics", "", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	bare := newFixture(t, nil)
	if resp := bare.do(t, http.MethodGet, "/metrics", "", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status without metrics = %d, want 404", resp.StatusCode)
	}
}

func TestMiddleware(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/health", "", "", nil)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID should be generated")
	}

	req, _ := http.NewRequest(http.MethodGet, f.http.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	r2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	r2.Body.Close()
	if got := r2.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want echo", got)
	}

	pre, _ := http.NewRequest(http.MethodOptions, f.http.URL+nodePath(f.on(), "/value"), nil)
	pre.Header.Set("Origin", "http://console.local")
	r3, err := http.DefaultClient.Do(pre)
	if err != nil {
		t.Fatal(err)
	}
	r3.Body.Close()
	if r3.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d", r3.StatusCode)
	}
	if got := r3.Header.Get("Access-Control-Allow-Origin"); got != "http://console.local" {
		t.Errorf("Allow-Origin = %q", got)
	}

	// Oversized bodies are cut off before the handler decodes them.
	big := `{"value":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	req4 := httptest.NewRequest(http.MethodPut, nodePath(f.on(), "/value"), strings.NewReader(big))
	req4.Header.Set("Authorization", "Bearer "+token(t, auth.RoleOperator))
	rec := httptest.NewRecorder()
	f.api.buildRouter().ServeHTTP(rec, req4)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversized body status = %d, want 400", rec.Code)
	}
}

type recordedRequest struct {
	route, method string
	status        int
}

type recordingRequests struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (r *recordingRequests) HTTPRequest(route, method string, status int, _ time.Duration) {
	r.mu.Lock()
	r.seen = append(r.seen, recordedRequest{route, method, status})
	r.mu.Unlock()
}

func TestRequestObserver(t *testing.T) {
	f := newFixture(t, nil)
	rec := &recordingRequests{}
	f.api.requests = rec
	router := f.api.buildRouter()

	serve(router, http.MethodGet, nodePath(f.lamp(), ""), "", "")
	serve(router, http.MethodPut, nodePath(f.on(), "/value"), "", `{"value":true}`)
	serve(router, http.MethodGet, "/nope", "", "")

	want := []recordedRequest{
		{"/api/v1/nodes/{id}/", http.MethodGet, http.StatusOK},
		{"/api/v1/nodes/{id}/value", http.MethodPut, http.StatusUnauthorized},
		{"unmatched", http.MethodGet, http.StatusNotFound},
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.seen) != len(want) {
		t.Fatalf("observed %d requests, want %d: %+v", len(rec.seen), len(want), rec.seen)
	}
	for i, w := range want {
		got := rec.seen[i]
		if got.method != w.method || got.status != w.status {
			t.Errorf("request %d = %+v, want %+v", i, got, w)
		}
		// Unmatched paths carry no route; matched ones use the pattern.
		if w.route != "unmatched" && strings.TrimSuffix(got.route, "/") != strings.TrimSuffix(w.route, "/") {
			t.Errorf("request %d route = %q, want %q", i, got.route, w.route)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", tt.header)
			got, ok := bearerToken(r)
			if got != tt.want || ok != tt.ok {
				t.Errorf("bearerToken(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCanonicalChannel(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"events", "events", true},
		{"events:ns=2;s=Lamp", "events:ns=2;s=Lamp", true},
		{"events: ns=0;i=85", "events:i=85", true},
		{"events:garbage", "", false},
		{"device.state_changed", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := canonicalChannel(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("canonicalChannel(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestHubFiltering(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test"))
	lamp := addrspace.StringID(2, "Lamp")

	newClient := func(channels []string, minSeverity uint16) *wsClient {
		c := &wsClient{hub: hub, out: make(chan []byte, 4), done: make(chan struct{}), channels: make(map[string]struct{})}
		c.subscribe(channels, minSeverity)
		hub.mu.Lock()
		hub.clients[c] = struct{}{}
		hub.mu.Unlock()
		return c
	}

	all := newClient([]string{ChannelEvents}, 0)
	lampOnly := newClient([]string{"events:" + lamp.String()}, 0)
	severe := newClient([]string{ChannelEvents}, 700)

	hub.BroadcastEvent(addrspace.Event{EventType: addrspace.BaseEventType, SourceNode: lamp, Severity: 500})
	hub.BroadcastEvent(addrspace.Event{EventType: addrspace.BaseEventType, SourceNode: addrspace.ObjectsFolder, Severity: 900})

	tests := []struct {
		name   string
		client *wsClient
		want   int
	}{
		{"all events", all, 2},
		{"one source", lampOnly, 1},
		{"min severity", severe, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.client.out); got != tt.want {
				t.Errorf("queued = %d, want %d", got, tt.want)
			}
		})
	}

	// A departed client is skipped without blocking.
	close(all.done)
	for i := 0; i < 10; i++ {
		all.enqueue([]byte("x"))
	}
}

func TestWebSocketEvents(t *testing.T) {
	f := newFixture(t, nil)
	unsubscribe := f.ua.Subscribe(f.api.hub.BroadcastEvent)
	defer unsubscribe()

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // test deadline

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{
		Channels: []string{"events:" + f.lamp().String()},
	}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("reading ack: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "1" {
		t.Fatalf("ack = %+v", ack)
	}

	trigger := func(origin addrspace.NodeID, msg string) {
		t.Helper()
		err := f.ua.Do(context.Background(), func(e addrspace.Engine) error {
			_, err := uaevent.Trigger(e, uaevent.Spec{
				Type:       addrspace.BaseEventType,
				Origin:     origin,
				SourceName: "Lamp",
				Message:    msg,
				Severity:   500,
			})
			return err
		})
		if err != nil {
			t.Fatalf("trigger: %v", err)
		}
	}

	// Events from other sources are filtered out.
	trigger(addrspace.ObjectsFolder, "elsewhere")
	trigger(f.lamp(), "switched")

	var got struct {
		Type      string       `json:"type"`
		EventType string       `json:"event_type"`
		Payload   EventPayload `json:"payload"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if got.Type != WSTypeEvent || got.EventType != ChannelEvents {
		t.Errorf("message = %+v", got)
	}
	if got.Payload.SourceNode != f.lamp().String() || got.Payload.Message != "switched" || got.Payload.Severity != 500 {
		t.Errorf("payload = %+v", got.Payload)
	}
	if got.Payload.EventID == "" {
		t.Error("event id should be set")
	}
	if f.api.hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", f.api.hub.ClientCount())
	}
}

func TestStartClose(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.api.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := f.api.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.api.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if err := f.api.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := f.api.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := f.api.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
