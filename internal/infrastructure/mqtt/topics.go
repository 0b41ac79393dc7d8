package mqtt

import "fmt"

// TopicPrefix is the root of every AttendAI topic.
const TopicPrefix = "attendai"

// Topics builds AttendAI MQTT topics. Every topic is scoped by client ID so
// several kiosks can share one broker:
//
//	attendai/session/{client}/{event}   session lifecycle events
//	attendai/command/{client}/{name}    commands addressed to one client
//	attendai/system/{client}/status     online/offline, also the LWT
type Topics struct{}

// SessionEvent returns the topic for a session event.
//
// Example: attendai/session/kiosk-hall/session.refreshed
func (Topics) SessionEvent(clientID, eventType string) string {
	return fmt.Sprintf("%s/session/%s/%s", TopicPrefix, clientID, eventType)
}

// Command returns the topic a client listens on for a named command.
//
// Example: attendai/command/kiosk-hall/logout
func (Topics) Command(clientID, name string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, clientID, name)
}

// SystemStatus returns the retained status topic for a client.
//
// Example: attendai/system/kiosk-hall/status
func (Topics) SystemStatus(clientID string) string {
	return fmt.Sprintf("%s/system/%s/status", TopicPrefix, clientID)
}

// AllSessionEvents matches session events from every client.
//
// Pattern: attendai/session/+/+
func (Topics) AllSessionEvents() string {
	return fmt.Sprintf("%s/session/+/+", TopicPrefix)
}

// AllStatuses matches the status topic of every client.
//
// Pattern: attendai/system/+/status
func (Topics) AllStatuses() string {
	return fmt.Sprintf("%s/system/+/status", TopicPrefix)
}
