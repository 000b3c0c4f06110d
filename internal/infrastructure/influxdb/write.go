package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the daemon.
const (
	MeasurementCommand = "tophat_command"
	MeasurementHat     = "tophat_hat"
)

// CommandPoint is one finished command.
type CommandPoint struct {
	Device   string
	Command  string
	Kind     string
	Status   string
	Duration time.Duration
	Queued   time.Duration
	At       time.Time
}

// WriteCommand records a finished command.
//
// Device, command, kind and status are tags; durations are fields in
// seconds. Points are dropped while the client is closed.
func (c *Client) WriteCommand(p CommandPoint) {
	if !c.IsConnected() {
		return
	}
	c.points.Add(1)
	c.writeAPI.WritePoint(commandPoint(p))
}

func commandPoint(p CommandPoint) *write.Point {
	at := p.At
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(
		MeasurementCommand,
		map[string]string{
			"device":  p.Device,
			"command": p.Command,
			"kind":    p.Kind,
			"status":  p.Status,
		},
		map[string]interface{}{
			"duration_s": p.Duration.Seconds(),
			"queued_s":   p.Queued.Seconds(),
			"count":      1,
		},
		at,
	)
}

// WriteHatStatus records whether a hat's container is running.
func (c *Client) WriteHatStatus(hat string, running bool) {
	if !c.IsConnected() {
		return
	}
	c.points.Add(1)
	c.writeAPI.WritePoint(hatPoint(hat, running, time.Now()))
}

func hatPoint(hat string, running bool, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementHat,
		map[string]string{"hat": hat},
		map[string]interface{}{"running": running},
		at,
	)
}
