package main

import (
	"context"
	"time"

	"github.com/nerrad567/attendai-core/internal/infrastructure/logging"
	"github.com/nerrad567/attendai-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/attendai-core/internal/session"
)

const (
	// commandLogout is the MQTT command that signs the local session out.
	commandLogout = "logout"

	commandTimeout   = 10 * time.Second
	publishQueueSize = 64
)

// jsonPublisher is the part of *mqtt.Client the event publisher needs.
type jsonPublisher interface {
	ClientID() string
	PublishJSON(topic string, v any) error
}

// eventPublisher forwards session events to MQTT from its own goroutine,
// since a publish waits for the broker's acknowledgement.
type eventPublisher struct {
	client jsonPublisher
	queue  chan session.Event
	logger *logging.Logger
}

func newEventPublisher(client jsonPublisher, logger *logging.Logger) *eventPublisher {
	return &eventPublisher{
		client: client,
		queue:  make(chan session.Event, publishQueueSize),
		logger: logger.With("component", "mqtt-events"),
	}
}

func (p *eventPublisher) OnSessionEvent(e session.Event) {
	select {
	case p.queue <- e:
	default:
		p.logger.Warn("mqtt event queue full, dropping event", "event_type", e.Type)
	}
}

// Run publishes queued events until ctx is cancelled.
func (p *eventPublisher) Run(ctx context.Context) error {
	for {
		select {
		case e := <-p.queue:
			p.publish(e)
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *eventPublisher) publish(e session.Event) {
	topic := mqtt.Topics{}.SessionEvent(p.client.ClientID(), string(e.Type))
	if err := p.client.PublishJSON(topic, e); err != nil {
		p.logger.Warn("publishing session event failed", "topic", topic, "error", err)
	}
}

// sessionEventWriter is the part of *influxdb.Client the telemetry observer needs.
type sessionEventWriter interface {
	WriteSessionEvent(eventType, role string, duration time.Duration, at time.Time)
}

// newTelemetryWriter records every session event as a time-series point.
// The influx writer batches internally so this never blocks.
func newTelemetryWriter(w sessionEventWriter) session.Observer {
	return session.ObserverFunc(func(e session.Event) {
		w.WriteSessionEvent(string(e.Type), string(e.Role()), e.Duration, e.At)
	})
}

type logouter interface {
	Logout(ctx context.Context) error
}

// logoutHandler signs the session out when a logout command arrives. The
// payload is ignored.
func logoutHandler(m logouter, logger *logging.Logger) mqtt.MessageHandler {
	return func(topic string, _ []byte) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		logger.Info("logout requested over MQTT", "topic", topic)
		return m.Logout(ctx)
	}
}
