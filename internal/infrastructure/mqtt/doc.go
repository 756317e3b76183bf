// Package mqtt provides MQTT client connectivity for the UA server.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Subscriptions to device event topics (axis/event/#)
//   - Publishing of the server status and mirrored address-space events
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The device's event service is bridged onto the broker; the server consumes
// it through eventbridge.MQTTFeed:
//
//	Device events -> MQTT broker -> MQTTFeed -> eventbridge.Hub -> modules
//
// Triggered address-space events flow the other way, to
// graylogic/ua/event/{source-node}.
//
// # Security Considerations
//
//   - Enable TLS for anything other than a local broker (cfg.Broker.TLS=true)
//   - Credentials are validated against the broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	feed := eventbridge.NewMQTTFeed(client, hub, cfg.Events.TopicPrefix, 1)
//	if err := feed.Start(); err != nil {
//	    return err
//	}
package mqtt
