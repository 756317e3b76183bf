package eventbridge

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Any matches any value of a filter key, as long as the key is present.
const Any = "*"

// Filter selects events by topic level ("topic0", "topic1", ...) and payload
// key. Every key must be present; values other than Any must match exactly.
type Filter map[string]string

// Matches reports whether ev satisfies the filter.
func (f Filter) Matches(ev *Event) bool {
	for key, want := range f {
		got, ok := ev.Lookup(key)
		if !ok {
			return false
		}
		if want != Any && fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

// Event is one device notification.
type Event struct {
	Topic    []string
	Values   map[string]any
	Received time.Time

	release  func()
	released atomic.Bool
}

// NewEvent builds an event. onRelease runs once, on the first Release.
func NewEvent(topic []string, values map[string]any, onRelease func()) *Event {
	return &Event{
		Topic:    topic,
		Values:   values,
		Received: time.Now(),
		release:  onRelease,
	}
}

// Release hands the event back to its producer. Calls after the first are ignored.
func (e *Event) Release() {
	if e.released.Swap(true) {
		return
	}
	if e.release != nil {
		e.release()
	}
}

// Released reports whether Release was called.
func (e *Event) Released() bool {
	return e.released.Load()
}

// TopicString joins the topic levels with "/".
func (e *Event) TopicString() string {
	return strings.Join(e.Topic, "/")
}

// Lookup returns the raw value under key. Keys "topic0".."topicN" address
// topic levels.
func (e *Event) Lookup(key string) (any, bool) {
	if strings.HasPrefix(key, "topic") {
		if i, err := strconv.Atoi(key[len("topic"):]); err == nil {
			if i >= 0 && i < len(e.Topic) {
				return e.Topic[i], true
			}
			return nil, false
		}
	}
	v, ok := e.Values[key]
	return v, ok
}

// String returns key as a string.
func (e *Event) String(key string) (string, error) {
	v, ok := e.Lookup(key)
	if !ok {
		return "", fmt.Errorf("%w: key %q missing", ErrMalformed, key)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case float64, int, bool:
		return fmt.Sprint(s), nil
	}
	return "", fmt.Errorf("%w: key %q is %T, not a string", ErrMalformed, key, v)
}

// Int returns key as an integer.
func (e *Event) Int(key string) (int, error) {
	v, ok := e.Lookup(key)
	if !ok {
		return 0, fmt.Errorf("%w: key %q missing", ErrMalformed, key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int(n), nil
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: key %q is not an integer: %v", ErrMalformed, key, v)
}

// Bool returns key as a boolean. Numbers 0 and 1 and the strings accepted by
// strconv.ParseBool are converted.
func (e *Event) Bool(key string) (bool, error) {
	v, ok := e.Lookup(key)
	if !ok {
		return false, fmt.Errorf("%w: key %q missing", ErrMalformed, key)
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64:
		if b == 0 || b == 1 {
			return b == 1, nil
		}
	case int:
		if b == 0 || b == 1 {
			return b == 1, nil
		}
	case string:
		if p, err := strconv.ParseBool(b); err == nil {
			return p, nil
		}
	}
	return false, fmt.Errorf("%w: key %q is not a boolean: %v", ErrMalformed, key, v)
}
