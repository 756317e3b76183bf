package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes.
//
// Device events arrive on a flat hierarchy mirroring the device's event
// topics: axis/event/{topic0}/{topic1}/{topic2}. The server publishes its own
// status and triggered address-space events below graylogic/ua.
const (
	// TopicPrefixDeviceEvents is the default base for device event topics.
	TopicPrefixDeviceEvents = "axis/event"

	// TopicPrefixUA is the base for topics published by the server.
	TopicPrefixUA = "graylogic/ua"
)

// Topics provides builders for the topics used by the server.
//
//	topics := mqtt.Topics{}
//	topics.DeviceEvent("axis/event", "Device", "IO", "Port")
//	// Returns: "axis/event/Device/IO/Port"
type Topics struct{}

// DeviceEvent returns the topic for a device event with the given levels.
//
// Example: axis/event/Device/IO/VirtualInput
func (Topics) DeviceEvent(prefix string, levels ...string) string {
	return strings.Join(append([]string{strings.TrimSuffix(prefix, "/")}, levels...), "/")
}

// AllDeviceEvents returns a pattern matching every device event.
//
// Pattern: axis/event/#
func (Topics) AllDeviceEvents(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/#"
}

// DeviceEventLevels splits a received device event topic into its levels
// below prefix. It returns false when the topic is not below prefix or has
// no levels.
func (Topics) DeviceEventLevels(prefix, topic string) ([]string, bool) {
	base := strings.TrimSuffix(prefix, "/") + "/"
	if !strings.HasPrefix(topic, base) {
		return nil, false
	}
	rest := topic[len(base):]
	if rest == "" {
		return nil, false
	}
	return strings.Split(rest, "/"), true
}

// ServerStatus returns the retained online/offline status topic.
//
// Example: graylogic/ua/status
func (Topics) ServerStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixUA)
}

// UAEvent returns the topic triggered address-space events are mirrored to,
// keyed by the source node.
//
// Example: graylogic/ua/event/ns=2;i=50001
func (Topics) UAEvent(sourceNode string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixUA, sourceNode)
}

// AllUAEvents returns a pattern matching every mirrored event.
//
// Pattern: graylogic/ua/event/#
func (Topics) AllUAEvents() string {
	return fmt.Sprintf("%s/event/#", TopicPrefixUA)
}
