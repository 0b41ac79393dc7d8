package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementSessionEvent holds one point per session lifecycle event.
const measurementSessionEvent = "session_event"

// WriteSessionEvent records a lifecycle event such as session.refreshed.
// role may be empty; duration is zero for events that are not timed.
//
// The write is non-blocking; points are batched and sent asynchronously.
func (c *Client) WriteSessionEvent(eventType, role string, duration time.Duration, at time.Time) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{"event": eventType}
	if role != "" {
		tags["role"] = role
	}
	fields := map[string]interface{}{"count": 1}
	if duration > 0 {
		fields["duration_ms"] = float64(duration.Microseconds()) / 1000
	}
	if at.IsZero() {
		at = time.Now()
	}

	c.writeAPI.WritePoint(write.NewPoint(measurementSessionEvent, tags, fields, at))
}
