// Package events fans finished commands out to the daemon's observers.
//
// The server builds one Outcome per request: every task the worker pool
// completes, plus lookups that fail with ERROR_INVALID_DEVICE. Observers
// turn outcomes into MQTT events, InfluxDB points and audit rows.
//
// Observers may block (an MQTT publish waits for the broker), so the
// daemon wraps the fan-out in Async, which queues outcomes and delivers
// them from a single goroutine. When the queue is full the outcome is
// dropped and counted; command execution never waits on an observer.
//
//	obs := events.NewAsync(events.Multi{
//	    events.NewMQTTPublisher(mqttClient, mqttClient.Topics()),
//	    events.NewMetricsRecorder(influxClient),
//	    events.NewAuditRecorder(repo),
//	}, events.DefaultBufferSize)
//	defer obs.Close()
package events
