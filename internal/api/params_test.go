package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-ua/internal/auth"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/params"
	"github.com/nerrad567/gray-logic-ua/internal/server"
)

func newParamsRouter(t *testing.T, store ParamStore) http.Handler {
	t.Helper()
	srv, err := New(Deps{
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testSecret, AccessTokenTTL: 15},
		},
		Logger:  logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test"),
		Nodes:   &server.Server{},
		Modules: staticModules{},
		Params:  store,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv.buildRouter()
}

func serve(router http.Handler, method, path, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestParams(t *testing.T) {
	store, err := params.Open(filepath.Join(t.TempDir(), "params.db"))
	if err != nil {
		t.Fatalf("params.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var changed []int
	if err := store.OnChange(params.LogLevel, func(n int) { changed = append(changed, n) }); err != nil {
		t.Fatalf("OnChange() error = %v", err)
	}

	router := newParamsRouter(t, store)
	admin := token(t, auth.RoleAdmin)

	tests := []struct {
		name   string
		path   string
		bearer string
		body   string
		want   int
	}{
		{"no token", "/api/v1/params/LogLevel", "", `{"value":3}`, http.StatusUnauthorized},
		{"operator", "/api/v1/params/LogLevel", token(t, auth.RoleOperator), `{"value":3}`, http.StatusForbidden},
		{"bad json", "/api/v1/params/LogLevel", admin, `{`, http.StatusBadRequest},
		{"missing value", "/api/v1/params/LogLevel", admin, `{}`, http.StatusBadRequest},
		{"unknown", "/api/v1/params/Colour", admin, `{"value":1}`, http.StatusNotFound},
		{"out of range", "/api/v1/params/LogLevel", admin, `{"value":9}`, http.StatusBadRequest},
		{"not a number", "/api/v1/params/Port", admin, `{"value":"http"}`, http.StatusBadRequest},
		{"number", "/api/v1/params/LogLevel", admin, `{"value":3}`, http.StatusNoContent},
		{"string", "/api/v1/params/Port", admin, `{"value":"4841"}`, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, http.MethodPut, tt.path, tt.bearer, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if len(changed) != 1 || changed[0] != 3 {
		t.Errorf("LogLevel callbacks = %v, want [3]", changed)
	}

	rec := serve(router, http.MethodGet, "/api/v1/params", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}
	var body struct {
		Params map[string]int `json:"params"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body.Params[params.LogLevel] != 3 || body.Params[params.Port] != 4841 {
		t.Errorf("params = %v, want LogLevel=3 Port=4841", body.Params)
	}
}

func TestParamsUnavailable(t *testing.T) {
	router := newParamsRouter(t, nil)

	if rec := serve(router, http.MethodGet, "/api/v1/params", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET status = %d, want 503", rec.Code)
	}
	rec := serve(router, http.MethodPut, "/api/v1/params/LogLevel", token(t, auth.RoleAdmin), `{"value":2}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("PUT status = %d, want 503", rec.Code)
	}
}
