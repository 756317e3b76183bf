// Package influxdb mirrors live state transitions into InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring. The
// history.Fanout recorder calls WriteStateTransition for every cache
// transition a capability module records, so port and virtual input
// activity can be graphed alongside other site telemetry. Module lifecycle
// transitions and runtime parameter changes are written as their own
// measurements.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteStateTransition("ioports", "3", "State", "Closed", "event", time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines. A nil
// *Client is a valid disabled client: writes are dropped.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
