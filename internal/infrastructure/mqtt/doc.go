// Package mqtt publishes TopHat events to an MQTT broker.
//
// MQTT is an optional outbound channel: the daemon reports what happens on
// the control socket so dashboards and home automation can follow it.
// Commands are never accepted over MQTT.
//
//	tophat/system/status          retained presence, also the Last Will
//	tophat/device/{name}/event    one message per finished command
//	tophat/hat/{name}/status      retained hat container state
//
// Use TLS when the broker is not local, and supply credentials through
// TOPHAT_MQTT_USERNAME and TOPHAT_MQTT_PASSWORD. Event payloads carry
// device names and command tags, never command arguments.
package mqtt
