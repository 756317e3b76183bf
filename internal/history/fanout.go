package history

import (
	"context"
	"time"
)

// SeriesWriter mirrors transitions into a time-series store.
// influxdb.Client satisfies it.
type SeriesWriter interface {
	WriteStateTransition(module, instance, property, value, source string, at time.Time)
}

// Logger is the subset of the application logger used by Fanout.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Fanout writes each transition to a primary Recorder and, when set, to a
// time-series store.
//
// A primary failure is returned. The series write is fire-and-forget; its
// errors surface through the series client's own error callback.
type Fanout struct {
	primary Recorder
	series  SeriesWriter
	logger  Logger
}

// NewFanout creates a Fanout. primary may be nil when SQLite history is not
// wanted; series may be nil when InfluxDB is disabled.
func NewFanout(primary Recorder, series SeriesWriter, logger Logger) *Fanout {
	if primary == nil {
		primary = Nop{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Fanout{primary: primary, series: series, logger: logger}
}

// RecordTransition implements Recorder.
func (f *Fanout) RecordTransition(ctx context.Context, t Transition) error {
	if t.At.IsZero() {
		t.At = time.Now()
	}

	if f.series != nil {
		f.series.WriteStateTransition(t.Module, t.Instance, t.Property, t.Value, t.Source, t.At)
	}

	if err := f.primary.RecordTransition(ctx, t); err != nil {
		f.logger.Warn("recording state transition failed",
			"module", t.Module,
			"instance", t.Instance,
			"property", t.Property,
			"error", err,
		)
		return err
	}
	return nil
}
