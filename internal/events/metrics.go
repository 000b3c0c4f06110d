package events

import (
	"github.com/nerrad567/tophat-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/tophat-core/internal/protocol"
)

// CommandWriter writes command points. *influxdb.Client implements it.
type CommandWriter interface {
	WriteCommand(p influxdb.CommandPoint)
}

// MetricsRecorder writes one InfluxDB point per outcome.
type MetricsRecorder struct {
	w CommandWriter
}

// NewMetricsRecorder returns an observer writing through w.
func NewMetricsRecorder(w CommandWriter) *MetricsRecorder {
	return &MetricsRecorder{w: w}
}

// Observe implements Observer. Unknown-device lookups are recorded under
// an empty device tag to keep client-chosen names out of series keys.
func (m *MetricsRecorder) Observe(o Outcome) {
	dev := o.Device
	if o.Status == protocol.StatusInvalidDevice {
		dev = ""
	}
	kind := ""
	if o.Kind != 0 {
		kind = o.Kind.String()
	}
	m.w.WriteCommand(influxdb.CommandPoint{
		Device:   dev,
		Command:  string(o.Command),
		Kind:     kind,
		Status:   o.Status.String(),
		Duration: o.Duration(),
		Queued:   o.Queued(),
		At:       o.Finished,
	})
}
