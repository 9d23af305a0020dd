package model

import (
	"encoding/json"
	"time"
)

// Lifecycle event names. The same strings are used as pub/sub channels and
// as the event names pushed to websocket clients.
const (
	EventGenerationStarted   = "content:generation:started"
	EventGenerationCompleted = "content:generation:completed"
	EventGenerationFailed    = "content:generation:failed"
)

// EventMessage is the wire envelope carried on the event bus
type EventMessage struct {
	UserID  string          `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

// GenerationStartedPayload is published when a worker begins an attempt
type GenerationStartedPayload struct {
	ContentID string           `json:"contentId"`
	JobID     string           `json:"jobId"`
	Status    GenerationStatus `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
}

// GenerationCompletedPayload is published once generated text is persisted
type GenerationCompletedPayload struct {
	ContentID     string           `json:"contentId"`
	JobID         string           `json:"jobId"`
	Status        GenerationStatus `json:"status"`
	Title         string           `json:"title"`
	ContentType   ContentType      `json:"contentType"`
	GeneratedText string           `json:"generatedText"`
	Timestamp     time.Time        `json:"timestamp"`
}

// GenerationFailedPayload is published when an attempt fails
type GenerationFailedPayload struct {
	ContentID     string           `json:"contentId"`
	JobID         string           `json:"jobId"`
	Status        GenerationStatus `json:"status"`
	FailureReason string           `json:"failureReason"`
	Timestamp     time.Time        `json:"timestamp"`
}
