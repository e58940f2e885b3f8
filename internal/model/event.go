package model

import (
	"encoding/json"
	"time"
)

type EventCategory string

const (
	CategoryAuthentication EventCategory = "authentication"
	CategoryContent        EventCategory = "content"
	CategoryMessaging      EventCategory = "messaging"
	CategorySearch         EventCategory = "search"
	CategoryNavigation     EventCategory = "navigation"
	CategoryError          EventCategory = "error"
	CategoryMonitoring     EventCategory = "monitoring"
)

var EventCategories = []EventCategory{
	CategoryAuthentication,
	CategoryContent,
	CategoryMessaging,
	CategorySearch,
	CategoryNavigation,
	CategoryError,
	CategoryMonitoring,
}

func (c EventCategory) Valid() bool {
	for _, k := range EventCategories {
		if k == c {
			return true
		}
	}
	return false
}

type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformMobile  Platform = "mobile"
	PlatformDesktop Platform = "desktop"
)

func (p Platform) Valid() bool {
	return p == PlatformWeb || p == PlatformMobile || p == PlatformDesktop
}

const (
	AnonymousUser  = "anonymous"
	UnknownSession = "unknown"
)

// BehaviorEvent is one user action reported by a client or by the server.
type BehaviorEvent struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Event      string         `json:"event"`
	Category   EventCategory  `json:"category"`
	Properties map[string]any `json:"properties,omitempty"`
	Platform   Platform       `json:"platform"`
	UserAgent  string         `json:"user_agent,omitempty"`
	IP         string         `json:"ip,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (e BehaviorEvent) MarshalJSON() ([]byte, error) {
	type alias BehaviorEvent
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{alias(e), FormatTimestamp(e.Timestamp)})
}

func (e *BehaviorEvent) UnmarshalJSON(data []byte) error {
	type alias BehaviorEvent
	aux := struct {
		*alias
		Timestamp string `json:"timestamp"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ts, err := ParseTimestamp(aux.Timestamp)
	if err != nil {
		return err
	}
	e.Timestamp = ts
	return nil
}
