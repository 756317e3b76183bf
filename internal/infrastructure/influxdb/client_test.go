package influxdb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/influxdb"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "graylogic-dev-token",
		Org:           "graylogic",
		Bucket:        "ua",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip connects to the local InfluxDB or skips the test.
func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	if _, err := influxdb.Connect(cfg); err == nil {
		t.Fatal("Connect() should return error for invalid URL")
	}
}

func TestNilClientIsDisabled(t *testing.T) {
	var client *influxdb.Client

	if client.IsConnected() {
		t.Error("nil client reports connected")
	}
	// Must not panic.
	client.WriteStateTransition("ioports", "0", "State", "Open", "event", time.Now())
	client.WriteModuleLifecycle("ioports", "activated")
	client.WriteParamChange("LogLevel", 2)
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestTransitionPoint(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := influxdb.TransitionPoint("ioports", "3", "State", "Closed", "event", at)

	if p.Name() != influxdb.MeasurementStateTransition {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	for k, want := range map[string]string{"module": "ioports", "instance": "3", "property": "State"} {
		if tags[k] != want {
			t.Errorf("tag %s = %q, want %q", k, tags[k], want)
		}
	}

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["value"] != "Closed" || fields["source"] != "event" {
		t.Errorf("fields = %v", fields)
	}
}

func TestLifecycleAndParamPoints(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		point   *write.Point
		measure string
		tag     string
		tagVal  string
		field   string
		want    interface{}
	}{
		{"lifecycle", influxdb.LifecyclePoint("bdi", "activated", at), influxdb.MeasurementModuleLifecycle, "action", "activated", "count", int64(1)},
		{"param", influxdb.ParamPoint("LogLevel", 3, at), influxdb.MeasurementParamChange, "param", "LogLevel", "value", int64(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.point.Name() != tt.measure {
				t.Errorf("Name() = %q, want %q", tt.point.Name(), tt.measure)
			}
			found := false
			for _, tag := range tt.point.TagList() {
				if tag.Key == tt.tag && tag.Value == tt.tagVal {
					found = true
				}
			}
			if !found {
				t.Errorf("tag %s=%s missing from %v", tt.tag, tt.tagVal, tt.point.TagList())
			}
			for _, f := range tt.point.FieldList() {
				if f.Key == tt.field && f.Value != tt.want {
					t.Errorf("field %s = %v (%T), want %v", f.Key, f.Value, f.Value, tt.want)
				}
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	client := connectOrSkip(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestWriteStateTransition(t *testing.T) {
	client := connectOrSkip(t)

	var writeErr error
	var mu sync.Mutex
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	client.WriteStateTransition("ioports", "1", "State", "Closed", "event", time.Now())
	client.WriteModuleLifecycle("ioports", "activated")
	client.WriteParamChange("Port", 4840)
	client.Flush()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("Write error = %v", writeErr)
		if !errors.Is(writeErr, influxdb.ErrWriteFailed) {
			t.Errorf("write error should wrap ErrWriteFailed")
		}
	}
}

func TestClose(t *testing.T) {
	client := connectOrSkip(t)

	client.WriteStateTransition("vinput", "1", "VirtualInput-1", "true", "write", time.Now())
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}
