package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/attendai-core/internal/auth"
)

// EventType names a session lifecycle transition.
type EventType string

const (
	EventBootstrapped  EventType = "session.bootstrapped"
	EventSignedIn      EventType = "session.signed_in"
	EventRefreshed     EventType = "session.refreshed"
	EventRefreshFailed EventType = "session.refresh_failed"
	EventExpired       EventType = "session.expired"
	EventLoggedOut     EventType = "session.logged_out"
	EventUserUpdated   EventType = "session.user_updated"
)

// Event describes one transition. Tokens are never included.
type Event struct {
	ID       string        `json:"id"`
	Type     EventType     `json:"type"`
	At       time.Time     `json:"at"`
	User     *auth.User    `json:"user,omitempty"`
	Username string        `json:"username,omitempty"`
	Redirect string        `json:"redirect,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Role returns the role of the event's user, or "" when there is none.
func (e Event) Role() auth.Role {
	if e.User == nil {
		return ""
	}
	return e.User.Role
}

// Observer receives session events in emit order. OnSessionEvent runs on
// the goroutine that caused the transition and must not block.
type Observer interface {
	OnSessionEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnSessionEvent(e Event) { f(e) }

func newEvent(t EventType, now time.Time) Event {
	return Event{ID: uuid.NewString(), Type: t, At: now.UTC()}
}
