package plugin

import (
	"fmt"
	"io"
	"strings"
)

// LoaderBuiltin is the Kind of BuiltinLoader.
const LoaderBuiltin = "builtin"

// Candidate is a module a loader has found but not yet loaded.
type Candidate struct {
	// Name is the logical name: the suffix after the prefix.
	Name string `json:"name"`

	// Source is the full registration name or file path.
	Source string `json:"source"`

	// Loader is the Kind of the loader that found it.
	Loader string `json:"loader"`
}

// Loader finds and loads modules of one kind.
type Loader interface {
	// Kind names the loader in logs and the audit trail.
	Kind() string

	// Discover enumerates candidates.
	Discover() ([]Candidate, error)

	// Load resolves the entry points of c. The returned handle, when not
	// nil, is closed by the registry on unload or rejection.
	Load(c Candidate) (Symbols, io.Closer, error)
}

// Factory creates a fresh, unconstructed module.
type Factory func() Module

// Builtin is one entry of the compile-time registration table.
type Builtin struct {
	// Name follows the "<prefix><name>" convention.
	Name string
	New  Factory
}

// BuiltinLoader loads modules from a registration table.
type BuiltinLoader struct {
	prefix  string
	table   []Builtin
	enabled func(name string) bool
}

// NewBuiltinLoader creates a loader over table.
//
// Parameters:
//   - prefix: Naming convention prefix; entries without it are ignored
//   - table: Registration table
//   - enabled: Filter on the logical name; nil enables every entry
func NewBuiltinLoader(prefix string, table []Builtin, enabled func(name string) bool) *BuiltinLoader {
	if enabled == nil {
		enabled = func(string) bool { return true }
	}
	return &BuiltinLoader{prefix: prefix, table: table, enabled: enabled}
}

// Kind implements Loader.
func (l *BuiltinLoader) Kind() string { return LoaderBuiltin }

// Discover implements Loader.
func (l *BuiltinLoader) Discover() ([]Candidate, error) {
	var out []Candidate
	for _, b := range l.table {
		if !strings.HasPrefix(b.Name, l.prefix) {
			continue
		}
		name := strings.TrimPrefix(b.Name, l.prefix)
		if name == "" || !l.enabled(name) {
			continue
		}
		out = append(out, Candidate{Name: name, Source: b.Name, Loader: LoaderBuiltin})
	}
	return out, nil
}

// Load implements Loader. Builtin modules have no handle.
func (l *BuiltinLoader) Load(c Candidate) (Symbols, io.Closer, error) {
	for _, b := range l.table {
		if b.Name != c.Source {
			continue
		}
		if b.New == nil {
			return Symbols{}, nil, fmt.Errorf("%w: %s has no factory", ErrMissingEntryPoint, c.Name)
		}
		return SymbolsOf(b.New()), nil, nil
	}
	return Symbols{}, nil, fmt.Errorf("%w: %s", ErrUnknownCandidate, c.Source)
}
