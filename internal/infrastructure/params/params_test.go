package params

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "params.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		param   string
		value   string
		want    int
		wantErr error
	}{
		{"log level min", LogLevel, "0", 0, nil},
		{"log level max", LogLevel, "4", 4, nil},
		{"log level high", LogLevel, "5", 0, ErrOutOfRange},
		{"log level negative", LogLevel, "-1", 0, ErrOutOfRange},
		{"port", Port, " 4841 ", 4841, nil},
		{"port zero", Port, "0", 0, ErrOutOfRange},
		{"port too high", Port, "65536", 0, ErrOutOfRange},
		{"not a number", Port, "abc", 0, ErrInvalidValue},
		{"unknown", "Colour", "1", 0, ErrUnknownParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.param, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Validate() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetDefaults(t *testing.T) {
	s := openTestStore(t)

	all, err := s.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if all[LogLevel] != 1 || all[Port] != 4840 {
		t.Errorf("All() = %v", all)
	}
	if _, err := s.Get("Nope"); !errors.Is(err, ErrUnknownParam) {
		t.Errorf("Get(unknown) error = %v", err)
	}
}

func TestSetPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Set(Port, "4841"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(Port, "99999"); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Set(out of range) error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	got, err := s.Get(Port)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != 4841 {
		t.Errorf("Get(Port) = %d, want 4841", got)
	}
}

func TestOnChange(t *testing.T) {
	s := openTestStore(t)

	var mu sync.Mutex
	var got []int
	if err := s.OnChange(LogLevel, func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("OnChange() error = %v", err)
	}
	if err := s.OnChange("Nope", func(int) {}); !errors.Is(err, ErrUnknownParam) {
		t.Errorf("OnChange(unknown) error = %v", err)
	}

	_ = s.Set(LogLevel, "3")
	_ = s.Set(LogLevel, "9") // rejected, no callback
	_ = s.Set(Port, "1000")  // other parameter

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("callbacks = %v, want [3]", got)
	}
}

func TestDefinitionsSorted(t *testing.T) {
	defs := Definitions()
	if len(defs) != 2 || defs[0].Name != LogLevel || defs[1].Name != Port {
		t.Errorf("Definitions() = %+v", defs)
	}
}
