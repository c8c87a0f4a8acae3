package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Token lifecycle events
	EventTypeTokenIssue          EventType = "token.issue"
	EventTypeTokenRefresh        EventType = "token.refresh"
	EventTypeTokenRevoke         EventType = "token.revoke"
	EventTypeTokenValidateFail   EventType = "token.validate_fail"
	EventTypeTokenReplayDetected EventType = "token.replay_detected"

	// Role and policy events
	EventTypeRoleCreate EventType = "role.create"
	EventTypeRoleUpdate EventType = "role.update"
	EventTypeRoleDelete EventType = "role.delete"

	// Application registry events
	EventTypeAppRegister EventType = "app.register"
	EventTypeAppDelete   EventType = "app.delete"

	// Discovery events
	EventTypeDiscoveryRun    EventType = "discovery.run"
	EventTypeDiscoveryFailed EventType = "discovery.failed"

	// Authorization events
	EventTypePermissionDenied EventType = "authz.permission_denied"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	Subject   string `json:"subject,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	// Target information
	AppID    string `json:"app_id,omitempty"`
	RoleName string `json:"role_name,omitempty"`
	TokenID  string `json:"token_id,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates an event stamped with the current UTC time.
func NewEvent(eventType EventType, status EventStatus, message string) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Status:    status,
		Message:   message,
	}
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	Subject    string
	AppID      string
	EventTypes []EventType
	Status     *EventStatus

	Limit int
}

// Matches reports whether the event satisfies every set filter field.
func (f SearchFilter) Matches(e *Event) bool {
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	if f.Subject != "" && e.Subject != f.Subject {
		return false
	}
	if f.AppID != "" && e.AppID != f.AppID {
		return false
	}
	if f.Status != nil && e.Status != *f.Status {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
