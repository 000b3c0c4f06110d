package events

import (
	"time"

	"github.com/nerrad567/tophat-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/tophat-core/internal/protocol"
)

// JSONPublisher publishes JSON payloads. *mqtt.Client implements it.
type JSONPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// CommandEvent is the JSON payload published for each outcome.
type CommandEvent struct {
	RequestID  string    `json:"request_id"`
	Device     string    `json:"device"`
	Command    string    `json:"command,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMS float64   `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// MQTTPublisher publishes outcomes to the device's event topic.
//
// Outcomes for unknown devices are not published: the name came from the
// client and is not a topic the daemon owns.
type MQTTPublisher struct {
	pub    JSONPublisher
	topics mqtt.Topics
	logger Logger
}

// NewMQTTPublisher returns an observer publishing through pub.
func NewMQTTPublisher(pub JSONPublisher, topics mqtt.Topics) *MQTTPublisher {
	return &MQTTPublisher{pub: pub, topics: topics, logger: noopLogger{}}
}

// SetLogger sets the logger for publish failures.
func (p *MQTTPublisher) SetLogger(logger Logger) {
	p.logger = logger
}

// Observe implements Observer.
func (p *MQTTPublisher) Observe(o Outcome) {
	if o.Status == protocol.StatusInvalidDevice {
		return
	}
	if err := p.pub.PublishJSON(p.topics.DeviceEvent(o.Device), NewCommandEvent(o), false); err != nil {
		p.logger.Warn("publishing command event failed",
			"request_id", o.RequestID,
			"device", o.Device,
			"error", err,
		)
	}
}

// NewCommandEvent converts an outcome to its published form.
func NewCommandEvent(o Outcome) CommandEvent {
	ev := CommandEvent{
		RequestID:  o.RequestID,
		Device:     o.Device,
		Command:    string(o.Command),
		Status:     o.Status.String(),
		Error:      o.ErrorText(),
		DurationMS: float64(o.Duration()) / float64(time.Millisecond),
		Timestamp:  o.Finished.UTC(),
	}
	if o.Kind != 0 {
		ev.Kind = o.Kind.String()
	}
	return ev
}
