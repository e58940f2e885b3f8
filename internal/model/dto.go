package model

// EventInput is the ingestion body for a client-reported behavior event.
type EventInput struct {
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Event      string         `json:"event" binding:"required"`
	Category   string         `json:"category"`
	Properties map[string]any `json:"properties"`
	Platform   string         `json:"platform"`
	Metadata   map[string]any `json:"metadata"`
}

// EventBatchInput accepts up to 100 events in one request.
type EventBatchInput struct {
	Events []EventInput `json:"events" binding:"required,min=1,max=100,dive"`
}

// ErrorReportInput is a client-side error report (e.g. a mobile crash).
type ErrorReportInput struct {
	Level    string         `json:"level" binding:"omitempty,oneof=error warn info"`
	Message  string         `json:"message"`
	Stack    string         `json:"stack"`
	UserID   string         `json:"user_id"`
	Endpoint string         `json:"endpoint"`
	Metadata map[string]any `json:"metadata"`
}

func (in EventInput) ToEvent() BehaviorEvent {
	return BehaviorEvent{
		UserID:     in.UserID,
		SessionID:  in.SessionID,
		Event:      in.Event,
		Category:   EventCategory(in.Category),
		Properties: in.Properties,
		Platform:   Platform(in.Platform),
		Metadata:   in.Metadata,
	}
}

func (in ErrorReportInput) ToRecord() ErrorRecord {
	return ErrorRecord{
		Level:    ErrorLevel(in.Level),
		Message:  in.Message,
		Stack:    in.Stack,
		UserID:   in.UserID,
		Endpoint: in.Endpoint,
		Metadata: in.Metadata,
	}
}
