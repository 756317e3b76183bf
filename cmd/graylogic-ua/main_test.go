package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-ua/internal/auth"
	"github.com/nerrad567/gray-logic-ua/internal/plugin"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// writeConfig writes a config that needs no broker, no InfluxDB and no
// listener, with its data files under a temp dir.
func writeConfig(t *testing.T, enabled ...string) string {
	t.Helper()
	dir := t.TempDir()

	var mods strings.Builder
	for _, name := range enabled {
		mods.WriteString("\n    - " + name)
	}

	content := `
modules:
  prefix: "libopcua-"
  enabled:` + mods.String() + `

database:
  path: "` + filepath.Join(dir, "ua.db") + `"
  wal_mode: true
  busy_timeout: 5

params:
  path: "` + filepath.Join(dir, "params.db") + `"

mqtt:
  enabled: false

influxdb:
  enabled: false

api:
  enabled: false

security:
  jwt:
    secret: "` + testSecret + `"
    access_token_ttl: 15

logging:
  level: error
  format: text
  output: stdout
`
	if len(enabled) == 0 {
		content = strings.Replace(content, "  enabled:\n", "  enabled: []\n", 1)
	}

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "graylogic-ua "+version) {
		t.Errorf("output = %q", out)
	}
}

func TestConfigPath(t *testing.T) {
	tests := []struct {
		name string
		flag string
		env  string
		want string
	}{
		{"default", "", "", defaultConfigPath},
		{"env", "", "/etc/ua/env.yaml", "/etc/ua/env.yaml"},
		{"flag wins", "/etc/ua/flag.yaml", "/etc/ua/env.yaml", "/etc/ua/flag.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GRAYLOGIC_UA_CONFIG", tt.env)
			opts := &RootOptions{ConfigPath: tt.flag}
			if got := opts.configPath(); got != tt.want {
				t.Errorf("configPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "param", "get")
	if err == nil {
		t.Fatal("param get should fail without a config file")
	}
}

func TestParamCommands(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "--config", cfg, "param", "get", "LogLevel")
	if err != nil {
		t.Fatalf("param get error = %v", err)
	}
	if strings.TrimSpace(out) != "1" {
		t.Errorf("default LogLevel = %q, want 1", out)
	}

	if _, err := execute(t, "--config", cfg, "param", "set", "LogLevel", "3"); err != nil {
		t.Fatalf("param set error = %v", err)
	}
	out, err = execute(t, "--config", cfg, "param", "get", "LogLevel")
	if err != nil {
		t.Fatalf("param get error = %v", err)
	}
	if strings.TrimSpace(out) != "3" {
		t.Errorf("LogLevel = %q, want 3", out)
	}

	rejects := [][]string{
		{"param", "set", "LogLevel", "7"},
		{"param", "set", "Port", "0"},
		{"param", "set", "Colour", "1"},
		{"param", "set", "Port"},
	}
	for _, args := range rejects {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			if _, err := execute(t, append([]string{"--config", cfg}, args...)...); err == nil {
				t.Error("expected an error")
			}
		})
	}

	out, err = execute(t, "--config", cfg, "param", "get")
	if err != nil {
		t.Fatalf("param get (all) error = %v", err)
	}
	for _, want := range []string{"LogLevel", "Port", "4840"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}

func TestTokenCommand(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "--config", cfg, "token", "--subject", "ops", "--role", "admin")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}
	claims, err := auth.ParseToken(strings.TrimSpace(out), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "ops" || claims.Role != auth.RoleAdmin {
		t.Errorf("claims = %q/%q, want ops/admin", claims.Subject, claims.Role)
	}

	if _, err := execute(t, "--config", cfg, "token"); err == nil {
		t.Error("token without --subject should fail")
	}
	if _, err := execute(t, "--config", cfg, "token", "--subject", "ops", "--role", "root"); err == nil {
		t.Error("token with an unknown role should fail")
	}
}

func TestModulesCommand(t *testing.T) {
	cfg := writeConfig(t, "helloworld", "bdi")

	out, err := execute(t, "--config", cfg, "modules", "--json")
	if err != nil {
		t.Fatalf("modules error = %v", err)
	}
	var got []plugin.Candidate
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(got) != 2 || got[0].Name != "helloworld" || got[1].Name != "bdi" {
		t.Errorf("candidates = %+v, want helloworld then bdi", got)
	}
	if got[0].Source != "libopcua-helloworld" {
		t.Errorf("source = %q", got[0].Source)
	}

	out, err = execute(t, "--config", cfg, "modules")
	if err != nil {
		t.Fatalf("modules error = %v", err)
	}
	if !strings.HasPrefix(out, "NAME") || !strings.Contains(out, "libopcua-bdi") {
		t.Errorf("table output = %q", out)
	}
}

func TestDBCommands(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "--config", cfg, "db", "status")
	if err != nil {
		t.Fatalf("db status error = %v", err)
	}
	for _, want := range []string{"module_audit", "state_history", "pending"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "--config", cfg, "db", "rollback")
	if err != nil {
		t.Fatalf("db rollback error = %v", err)
	}
	if strings.TrimSpace(out) != "nothing to roll back" {
		t.Errorf("rollback output = %q", out)
	}
}

func TestServeShutsDown(t *testing.T) {
	cfg := writeConfig(t, "helloworld")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, &RootOptions{ConfigPath: cfg})
	}()

	// Wait until serve has migrated the schema, then shut it down.
	deadline := time.Now().Add(5 * time.Second)
	for {
		out, err := execute(t, "--config", cfg, "db", "status")
		if err == nil && !strings.Contains(out, "pending") {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("schema not migrated by serve: %v\n%s", err, out)
		}
		time.Sleep(50 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancel")
	}

	// The params file must be released so the CLI can open it again.
	if _, err := execute(t, "--config", cfg, "param", "get", "Port"); err != nil {
		t.Errorf("param get after serve: %v", err)
	}
}
