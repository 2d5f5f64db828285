package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderNotFound indicates no provider is registered under the requested name.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrUnsupportedCapability indicates the provider variant lacks the requested operation.
	ErrUnsupportedCapability = errors.New("capability not supported by provider")

	// ErrDuplicateCommit indicates the consolidated turn was already committed.
	ErrDuplicateCommit = errors.New("turn already committed")
)

// ValidationError rejects a malformed request before any upstream contact.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// UpstreamError is a non-success response from the provider.
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider %s returned status %d: %s", e.Provider, e.Status, e.Body)
}

// TransportError is a network failure while talking to the provider.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider %s transport failure: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseError marks a single stream chunk that could not be decoded.
type ParseError struct {
	Data []byte
}

func (e *ParseError) Error() string {
	const maxPreview = 64
	preview := e.Data
	if len(preview) > maxPreview {
		preview = preview[:maxPreview]
	}
	return fmt.Sprintf("undecodable stream chunk: %q", preview)
}

// PersistenceError wraps a failed consolidated-turn commit.
type PersistenceError struct {
	ConversationID string
	Err            error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to commit conversation %s: %v", e.ConversationID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// errorEventFor maps an upstream or transport failure into the event forwarded to the caller.
func errorEventFor(err error) *EventError {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return &EventError{Status: upstream.Status, Code: "upstream_error", Message: upstream.Body}
	}

	var transport *TransportError
	if errors.As(err, &transport) {
		return &EventError{Code: "transport_error", Message: transport.Err.Error()}
	}

	if errors.Is(err, errStreamTimeout) {
		return &EventError{Code: "timeout", Message: err.Error()}
	}

	return &EventError{Code: "internal_error", Message: err.Error()}
}
