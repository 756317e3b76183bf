package params

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Parameter names.
const (
	LogLevel = "LogLevel"
	Port     = "Port"
)

var bucketParams = []byte("params")

// Definition describes one parameter's domain.
type Definition struct {
	Name    string
	Min     int
	Max     int
	Default int
}

var definitions = map[string]Definition{
	LogLevel: {Name: LogLevel, Min: 0, Max: 4, Default: 1},
	Port:     {Name: Port, Min: 1, Max: 65535, Default: 4840},
}

// Definitions returns every supported parameter sorted by name.
func Definitions() []Definition {
	out := make([]Definition, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate parses and range-checks a textual value for the named parameter.
func Validate(name, value string) (int, error) {
	def, ok := definitions[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, name, value)
	}
	if n < def.Min || n > def.Max {
		return 0, fmt.Errorf("%w: %s=%d (allowed %d..%d)", ErrOutOfRange, name, n, def.Min, def.Max)
	}
	return n, nil
}

// ChangeFunc is called after a parameter value is persisted.
type ChangeFunc func(value int)

// Store is a bbolt-backed parameter store.
//
// Thread Safety: all methods are safe for concurrent use. Change callbacks
// run synchronously on the goroutine that called Set, after the write has
// committed and without any store lock held.
type Store struct {
	db *bolt.DB

	mu       sync.Mutex
	handlers map[string][]ChangeFunc
}

// Open opens or creates the parameter file.
//
// Parameters:
//   - path: Filesystem path of the bbolt file; the directory is created
//
// Returns:
//   - *Store: Open store
//   - error: If the file cannot be opened or the bucket created
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating params directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketParams)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &Store{db: db, handlers: make(map[string][]ChangeFunc)}, nil
}

// Get returns the stored value, or the default when unset.
func (s *Store) Get(name string) (int, error) {
	def, ok := definitions[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}

	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketParams)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketParams)
		}
		if v := b.Get([]byte(name)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", name, err)
	}
	if raw == nil {
		return def.Default, nil
	}
	return Validate(name, string(raw))
}

// Set validates and persists a value, then runs the name's change callbacks.
func (s *Store) Set(name, value string) error {
	n, err := Validate(name, value)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketParams)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketParams)
		}
		return b.Put([]byte(name), []byte(strconv.Itoa(n)))
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}

	s.mu.Lock()
	fns := append([]ChangeFunc(nil), s.handlers[name]...)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
	return nil
}

// All returns every parameter with its effective value.
func (s *Store) All() (map[string]int, error) {
	out := make(map[string]int, len(definitions))
	for name := range definitions {
		v, err := s.Get(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// OnChange registers fn to run after every successful Set of name.
func (s *Store) OnChange(name string, fn ChangeFunc) error {
	if _, ok := definitions[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	s.mu.Lock()
	s.handlers[name] = append(s.handlers[name], fn)
	s.mu.Unlock()
	return nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.db.Path()
}

// Close closes the bbolt file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
