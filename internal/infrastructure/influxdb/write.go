package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the UA server.
const (
	MeasurementStateTransition = "state_transition"
	MeasurementModuleLifecycle = "module_lifecycle"
	MeasurementParamChange     = "param_change"
)

// TransitionPoint builds the point for one live state transition.
//
// module, instance and property are tags (low cardinality); the value and
// source are fields so that free-text names do not explode the series count.
func TransitionPoint(module, instance, property, value, source string, at time.Time) *write.Point {
	return write.NewPointWithMeasurement(MeasurementStateTransition).
		AddTag("module", module).
		AddTag("instance", instance).
		AddTag("property", property).
		AddField("value", value).
		AddField("source", source).
		SetTime(at)
}

// LifecyclePoint builds the point for one module registry transition.
func LifecyclePoint(module, action string, at time.Time) *write.Point {
	return write.NewPointWithMeasurement(MeasurementModuleLifecycle).
		AddTag("module", module).
		AddTag("action", action).
		AddField("count", 1).
		SetTime(at)
}

// ParamPoint builds the point for a runtime parameter change.
func ParamPoint(name string, value int, at time.Time) *write.Point {
	return write.NewPointWithMeasurement(MeasurementParamChange).
		AddTag("param", name).
		AddField("value", value).
		SetTime(at)
}

// WriteStateTransition queues a capability property change.
//
// Parameters:
//   - module: Logical module name (e.g., "ioports")
//   - instance: Instance key within the module (e.g., port index "3")
//   - property: Browse name of the property (e.g., "State")
//   - value: New value as text
//   - source: How the change was observed (event, write, inventory)
//   - at: Observation time
func (c *Client) WriteStateTransition(module, instance, property, value, source string, at time.Time) {
	c.write(TransitionPoint(module, instance, property, value, source, at))
}

// WriteModuleLifecycle queues a module registry transition (loaded,
// activated, unloaded, ...).
func (c *Client) WriteModuleLifecycle(module, action string) {
	c.write(LifecyclePoint(module, action, time.Now()))
}

// WriteParamChange queues a parameter change.
func (c *Client) WriteParamChange(name string, value int) {
	c.write(ParamPoint(name, value, time.Now()))
}
