package model

import (
	"encoding/json"
	"time"
)

type ErrorLevel string

const (
	LevelError ErrorLevel = "error"
	LevelWarn  ErrorLevel = "warn"
	LevelInfo  ErrorLevel = "info"
)

const DefaultErrorMessage = "Unknown error"

// ErrorRecord is a single tracked failure. Immutable once created.
type ErrorRecord struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      ErrorLevel     `json:"level"`
	Message    string         `json:"message"`
	Stack      string         `json:"stack,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Endpoint   string         `json:"endpoint,omitempty"`
	Method     string         `json:"method,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	IP         string         `json:"ip,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IsCritical reports a server-side failure: level error with a 5xx status.
func (r *ErrorRecord) IsCritical() bool {
	return r.Level == LevelError && r.StatusCode >= 500
}

func (r ErrorRecord) MarshalJSON() ([]byte, error) {
	type alias ErrorRecord
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{alias(r), FormatTimestamp(r.Timestamp)})
}

func (r *ErrorRecord) UnmarshalJSON(data []byte) error {
	type alias ErrorRecord
	aux := struct {
		*alias
		Timestamp string `json:"timestamp"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ts, err := ParseTimestamp(aux.Timestamp)
	if err != nil {
		return err
	}
	r.Timestamp = ts
	return nil
}
