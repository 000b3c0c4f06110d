package mqtt

import "fmt"

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "tophat"

// Topics builds TopHat MQTT topic names under one prefix.
//
//	topics := mqtt.NewTopics("tophat")
//	topics.DeviceEvent("strip")
//	// Returns: "tophat/device/strip/event"
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of every topic.
func (t Topics) Prefix() string {
	return t.prefix
}

// SystemStatus returns the retained daemon online/offline topic.
//
// Example: tophat/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix)
}

// DeviceEvent returns the topic for command outcomes on a device.
//
// Example: tophat/device/printer/event
func (t Topics) DeviceEvent(deviceName string) string {
	return fmt.Sprintf("%s/device/%s/event", t.prefix, deviceName)
}

// HatStatus returns the retained topic for a hat's container state.
//
// Example: tophat/hat/weather/status
func (t Topics) HatStatus(hatName string) string {
	return fmt.Sprintf("%s/hat/%s/status", t.prefix, hatName)
}

// AllDeviceEvents returns a pattern matching every device event topic.
//
// Pattern: tophat/device/+/event
func (t Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/device/+/event", t.prefix)
}
