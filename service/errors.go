package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure within one of the pipeline stages
type ErrorKind string

// ErrorKind constants
const (
	KindUnreadable        ErrorKind = "unreadable"
	KindTooLarge          ErrorKind = "too_large"
	KindInvalidImage      ErrorKind = "invalid_image"
	KindEmptyDocument     ErrorKind = "empty_document"
	KindServiceFailure    ErrorKind = "network_or_service_failure"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindEmptyResponse     ErrorKind = "empty_response"
)

// Lifecycle errors returned by the session controller and the conversation log
var (
	ErrEmptyDocument    = errors.New("document is empty")
	ErrAnalysisInFlight = errors.New("an analysis is already in progress")
	ErrNoAnalysis       = errors.New("no analysis is present for this session")
	ErrEmptyQuestion    = errors.New("question is empty")
	ErrAwaitingReply    = errors.New("a previous question is still awaiting a reply")
	ErrConversationFull = errors.New("conversation has reached its message limit")
	ErrSessionReset     = errors.New("session was reset while the request was in flight")
)

// IngestionError is returned when user input cannot be turned into a payload
type IngestionError struct {
	Kind ErrorKind
	Err  error
}

func (e *IngestionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ingestion failed (%s)", e.Kind)
	}
	return fmt.Sprintf("ingestion failed (%s): %v", e.Kind, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// AnalysisError is returned by the analysis client
type AnalysisError struct {
	Kind ErrorKind
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed (%s): %v", e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// ConversationError is returned by the conversation client
type ConversationError struct {
	Kind ErrorKind
	Err  error
}

func (e *ConversationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("conversation failed (%s)", e.Kind)
	}
	return fmt.Sprintf("conversation failed (%s): %v", e.Kind, e.Err)
}

func (e *ConversationError) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from any of the pipeline error types
func KindOf(err error) ErrorKind {
	var ie *IngestionError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var ce *ConversationError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
