package lua

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	glua "github.com/yuin/gopher-lua"

	"github.com/nerrad567/gray-logic-ua/internal/plugin"
)

// Kind is the loader kind recorded in logs and the audit trail.
const Kind = "lua"

// Required global functions.
const (
	fnCreate  = "create"
	fnDestroy = "destroy"
	fnName    = "plugin_name"
)

// Loader discovers Lua modules in a directory.
type Loader struct {
	dir    string
	prefix string
}

// NewLoader creates a loader for dir. Only files named
// "<prefix><name>.lua" are considered.
func NewLoader(dir, prefix string) *Loader {
	return &Loader{dir: dir, prefix: prefix}
}

// Kind implements plugin.Loader.
func (l *Loader) Kind() string { return Kind }

// Discover implements plugin.Loader. A missing directory yields no
// candidates.
func (l *Loader) Discover() ([]plugin.Candidate, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading module directory: %w", err)
	}

	var out []plugin.Candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		file := e.Name()
		if !strings.HasPrefix(file, l.prefix) || !strings.HasSuffix(file, ".lua") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(file, l.prefix), ".lua")
		if name == "" {
			continue
		}
		out = append(out, plugin.Candidate{
			Name:   name,
			Source: filepath.Join(l.dir, file),
			Loader: Kind,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Load implements plugin.Loader. It runs the script's top level in a fresh
// sandbox and resolves the entry points that are defined. The returned
// handle closes the Lua state.
func (l *Loader) Load(c plugin.Candidate) (plugin.Symbols, io.Closer, error) {
	L := newSandbox()
	if err := L.DoFile(c.Source); err != nil {
		L.Close()
		return plugin.Symbols{}, nil, fmt.Errorf("loading %s: %w", c.Source, err)
	}

	s := &script{name: c.Name, L: L}
	var syms plugin.Symbols
	if isFunction(L, fnCreate) {
		syms.Construct = s.Construct
	}
	if isFunction(L, fnDestroy) {
		syms.Destruct = s.Destruct
	}
	if isFunction(L, fnName) {
		syms.Name = s.Name
	}
	return syms, s, nil
}

func isFunction(L *glua.LState, name string) bool {
	return L.GetGlobal(name).Type() == glua.LTFunction
}

// newSandbox returns a Lua state without filesystem, process or module
// loading access.
func newSandbox() *glua.LState {
	L := glua.NewState(glua.Options{SkipOpenLibs: false})
	L.SetGlobal("os", glua.LNil)
	L.SetGlobal("io", glua.LNil)
	L.SetGlobal("loadfile", glua.LNil)
	L.SetGlobal("dofile", glua.LNil)
	L.SetGlobal("require", glua.LNil)
	L.SetGlobal("load", glua.LNil)
	L.SetGlobal("debug", glua.LNil)
	L.SetGlobal("package", glua.LNil)
	return L
}
