package model

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueUnavailable is returned when the broker cannot accept a job
	ErrQueueUnavailable = errors.New("queue unavailable")

	// ErrContentNotFound is returned when a content record cannot be resolved
	ErrContentNotFound = errors.New("content not found")

	// ErrJobNotFound is returned when the broker has no job with the given id
	ErrJobNotFound = errors.New("job not found")

	// ErrEmptyGenerationResult is returned when the provider produced no usable text
	ErrEmptyGenerationResult = errors.New("AI service returned empty content")

	// ErrForbidden is returned when a user touches a record they do not own
	ErrForbidden = errors.New("you do not have permission to access this content")

	// ErrGenerationInProgress is returned when a content item already has a live job
	ErrGenerationInProgress = errors.New("generation already in progress for this content")

	// ErrContentNotCompleted is returned when an operation needs generated text
	ErrContentNotCompleted = errors.New("content generation not completed")

	// ErrBusNotInitialized is returned when publishing before the bus is up
	ErrBusNotInitialized = errors.New("event bus not initialized")
)

// ProviderErrorKind classifies generation provider failures
type ProviderErrorKind string

const (
	ProviderErrorAuth    ProviderErrorKind = "auth"
	ProviderErrorQuota   ProviderErrorKind = "quota"
	ProviderErrorSafety  ProviderErrorKind = "safety"
	ProviderErrorTimeout ProviderErrorKind = "timeout"
	ProviderErrorUnknown ProviderErrorKind = "unknown"
)

// GenerationProviderError wraps a provider-specific failure
type GenerationProviderError struct {
	Kind    ProviderErrorKind
	Message string
	Err     error
}

func (e *GenerationProviderError) Error() string {
	return e.Message
}

func (e *GenerationProviderError) Unwrap() error {
	return e.Err
}

// NeedsAlert reports whether an operator should be told about this failure.
// Such failures are still retried like any other.
func (e *GenerationProviderError) NeedsAlert() bool {
	return e.Kind == ProviderErrorAuth || e.Kind == ProviderErrorQuota
}

// PersistenceError is returned when a content record write fails
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PublishError is returned by the event bus when a send fails. Callers log
// and discard it.
type PublishError struct {
	Channel string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish to %s: %v", e.Channel, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
