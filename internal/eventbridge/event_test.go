package eventbridge

import (
	"errors"
	"testing"
)

func TestFilterMatches(t *testing.T) {
	ev := NewEvent([]string{"Device", "IO", "Port"}, map[string]any{"port": float64(3), "state": true}, nil)

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"topic level", Filter{"topic0": "Device", "topic2": "Port"}, true},
		{"topic mismatch", Filter{"topic1": "Light"}, false},
		{"any value", Filter{"port": Any}, true},
		{"exact number", Filter{"port": "3"}, true},
		{"exact bool", Filter{"state": "true"}, true},
		{"missing key", Filter{"index": Any}, false},
		{"topic out of range", Filter{"topic5": Any}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(ev); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventGetters(t *testing.T) {
	ev := NewEvent([]string{"Device"}, map[string]any{
		"port":   float64(3),
		"frac":   1.5,
		"text":   "7",
		"state":  true,
		"onoff":  float64(1),
		"word":   "false",
		"nested": map[string]any{},
	}, nil)

	t.Run("Int", func(t *testing.T) {
		for key, want := range map[string]int{"port": 3, "text": 7} {
			got, err := ev.Int(key)
			if err != nil || got != want {
				t.Errorf("Int(%q) = %d, %v; want %d", key, got, err, want)
			}
		}
		for _, key := range []string{"frac", "missing", "nested"} {
			if _, err := ev.Int(key); !errors.Is(err, ErrMalformed) {
				t.Errorf("Int(%q) error = %v, want ErrMalformed", key, err)
			}
		}
	})

	t.Run("Bool", func(t *testing.T) {
		for key, want := range map[string]bool{"state": true, "onoff": true, "word": false} {
			got, err := ev.Bool(key)
			if err != nil || got != want {
				t.Errorf("Bool(%q) = %v, %v; want %v", key, got, err, want)
			}
		}
		if _, err := ev.Bool("port"); !errors.Is(err, ErrMalformed) {
			t.Errorf("Bool(port) error = %v, want ErrMalformed", err)
		}
	})

	t.Run("String", func(t *testing.T) {
		got, err := ev.String("topic0")
		if err != nil || got != "Device" {
			t.Errorf("String(topic0) = %q, %v", got, err)
		}
		if _, err := ev.String("nested"); !errors.Is(err, ErrMalformed) {
			t.Errorf("String(nested) error = %v, want ErrMalformed", err)
		}
	})
}

func TestEventReleaseOnce(t *testing.T) {
	calls := 0
	ev := NewEvent(nil, nil, func() { calls++ })

	ev.Release()
	ev.Release()

	if calls != 1 {
		t.Errorf("release ran %d times, want 1", calls)
	}
	if !ev.Released() {
		t.Error("Released() = false after Release")
	}
}
