package lua

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ua/internal/plugin"
)

const prefix = plugin.DefaultPrefix

const goodScript = `
function plugin_name() return "opc-lua-example-plugin" end

function create()
    local ns = ua.namespace("http://example.com/OpcUA/LuaExample/")
    local obj = ua.add_object{parent = ua.OBJECTS, ns = ns, name = "LuaExample"}
    ua.add_variable{parent = obj, ns = ns, name = "Greeting", type = "string", value = "hi"}
    ua.add_variable{parent = obj, ns = ns, name = "Count", type = "uint32", value = 7, writable = true}
    ua.log("info", "lua example created")
end

function destroy() end
`

const failingScript = `
function plugin_name() return "opc-lua-failing-plugin" end

function create()
    local ns = ua.namespace("http://example.com/OpcUA/LuaFailing/")
    ua.add_object{parent = ua.OBJECTS, ns = ns, name = "Half"}
    error("device not ready")
end

function destroy() end
`

const noDestroyScript = `
function plugin_name() return "incomplete" end
function create() end
`

const sandboxScript = `
local t = os.time()
function plugin_name() return "escape" end
function create() end
function destroy() end
`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func testHost(space *addrspace.Space) plugin.Host {
	return plugin.Host{
		Engine: space,
		Logger: logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "debug"}, "test"),
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, prefix+"beta.lua", goodScript)
	writeScript(t, dir, prefix+"alpha.lua", goodScript)
	writeScript(t, dir, "other-gamma.lua", goodScript)
	writeScript(t, dir, prefix+"delta.txt", goodScript)
	if err := os.Mkdir(filepath.Join(dir, prefix+"dir.lua"), 0o750); err != nil {
		t.Fatal(err)
	}

	got, err := NewLoader(dir, prefix).Discover()
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "alpha" || got[1].Name != "beta" {
		t.Fatalf("Discover() = %+v", got)
	}
	if got[0].Loader != Kind || got[0].Source != filepath.Join(dir, prefix+"alpha.lua") {
		t.Errorf("candidate = %+v", got[0])
	}
}

func TestDiscoverMissingDir(t *testing.T) {
	got, err := NewLoader(filepath.Join(t.TempDir(), "absent"), prefix).Discover()
	if err != nil || len(got) != 0 {
		t.Errorf("Discover() = %v, %v", got, err)
	}
}

func TestConstructAndDestruct(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, prefix+"example.lua", goodScript)
	space := addrspace.New(addrspace.Options{ApplicationURI: "urn:test"})
	before := space.NodeCount()

	l := NewLoader(dir, prefix)
	cands, _ := l.Discover()
	syms, handle, err := l.Load(cands[0])
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer handle.Close()

	if got := syms.Name(); got != plugin.NotInitialized("example") {
		t.Errorf("Name() before construct = %q", got)
	}

	if err := syms.Construct(context.Background(), testHost(space)); err != nil {
		t.Fatalf("Construct() error = %v", err)
	}
	if got := syms.Name(); got != "opc-lua-example-plugin" {
		t.Errorf("Name() = %q", got)
	}
	if space.NodeCount() != before+3 {
		t.Errorf("NodeCount() = %d, want %d", space.NodeCount(), before+3)
	}

	// Second construct is a no-op.
	if err := syms.Construct(context.Background(), testHost(space)); err != nil {
		t.Fatalf("second Construct() error = %v", err)
	}
	if space.NodeCount() != before+3 {
		t.Errorf("second Construct() added nodes: %d", space.NodeCount())
	}

	if err := syms.Destruct(); err != nil {
		t.Fatalf("Destruct() error = %v", err)
	}
	if space.NodeCount() != before {
		t.Errorf("NodeCount() after destruct = %d, want %d", space.NodeCount(), before)
	}
	if err := syms.Destruct(); err != nil {
		t.Errorf("second Destruct() error = %v", err)
	}
}

func TestCreateErrorRollsBack(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, prefix+"failing.lua", failingScript)
	space := addrspace.New(addrspace.Options{ApplicationURI: "urn:test"})
	before := space.NodeCount()

	l := NewLoader(dir, prefix)
	r := plugin.NewRegistry(testHost(space).Logger, l)

	n, err := r.LoadAll(context.Background(), testHost(space))
	if err == nil {
		t.Fatal("LoadAll() expected construct error")
	}
	if errors.Is(err, plugin.ErrRollbackFailed) {
		t.Errorf("rollback should succeed: %v", err)
	}
	if n != 0 {
		t.Errorf("active = %d, want 0", n)
	}
	if space.NodeCount() != before {
		t.Errorf("NodeCount() = %d, want %d", space.NodeCount(), before)
	}
}

func TestMissingEntryPointRejected(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, prefix+"incomplete.lua", noDestroyScript)
	space := addrspace.New(addrspace.Options{ApplicationURI: "urn:test"})

	r := plugin.NewRegistry(testHost(space).Logger, NewLoader(dir, prefix))
	n, err := r.LoadAll(context.Background(), testHost(space))
	if !errors.Is(err, plugin.ErrMissingEntryPoint) {
		t.Errorf("LoadAll() error = %v, want ErrMissingEntryPoint", err)
	}
	if n != 0 {
		t.Errorf("active = %d, want 0", n)
	}
}

func TestSandbox(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, prefix+"escape.lua", sandboxScript)

	_, _, err := NewLoader(dir, prefix).Load(plugin.Candidate{Name: "escape", Source: path, Loader: Kind})
	if err == nil {
		t.Fatal("Load() should fail when the script touches os")
	}
}
