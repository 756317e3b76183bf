package eventbridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/mqtt"
)

// MQTTSubscriber is the part of the MQTT client the feed needs.
type MQTTSubscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Publisher accepts device events, typically a *Hub.
type Publisher interface {
	Publish(topic []string, values map[string]any) int
}

// MQTTFeed republishes device events received over MQTT into a Publisher.
// A message on <prefix>/Device/IO/Port with payload {"port":3,"state":true}
// becomes an event with topic [Device IO Port] and those values.
type MQTTFeed struct {
	client MQTTSubscriber
	out    Publisher
	prefix string
	qos    byte
}

// NewMQTTFeed creates a feed. prefix defaults to mqtt.TopicPrefixDeviceEvents.
func NewMQTTFeed(client MQTTSubscriber, out Publisher, prefix string, qos byte) *MQTTFeed {
	if prefix == "" {
		prefix = mqtt.TopicPrefixDeviceEvents
	}
	return &MQTTFeed{
		client: client,
		out:    out,
		prefix: strings.TrimSuffix(prefix, "/"),
		qos:    qos,
	}
}

// Start subscribes to every topic below the prefix.
func (f *MQTTFeed) Start() error {
	return f.client.Subscribe(mqtt.Topics{}.AllDeviceEvents(f.prefix), f.qos, f.handle)
}

// Stop removes the subscription.
func (f *MQTTFeed) Stop() error {
	return f.client.Unsubscribe(mqtt.Topics{}.AllDeviceEvents(f.prefix))
}

func (f *MQTTFeed) handle(topic string, payload []byte) error {
	levels, ok := mqtt.Topics{}.DeviceEventLevels(f.prefix, topic)
	if !ok {
		return fmt.Errorf("%w: topic %q outside %q", ErrMalformed, topic, f.prefix)
	}

	values := map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &values); err != nil {
			return fmt.Errorf("%w: payload on %q: %w", ErrMalformed, topic, err)
		}
	}
	f.out.Publish(levels, values)
	return nil
}
