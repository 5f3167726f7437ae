package services

import "errors"

// Sentinel errors shared by the backend sessions and the conversation services.
var (
	// ErrTimeout marks a backend request that exceeded its wall-clock budget.
	ErrTimeout = errors.New("backend request timed out")

	// ErrToolsUnsupported marks a backend rejecting a request because it carried tool declarations.
	ErrToolsUnsupported = errors.New("backend does not support tools")

	// ErrNoBackendSession is returned when an operation needs a live backend session.
	ErrNoBackendSession = errors.New("no active backend session")

	// ErrClarificationPending is returned when a switch is attempted while a question is unanswered.
	ErrClarificationPending = errors.New("a clarification question is still waiting for an answer")

	// ErrTurnInProgress is returned when a second message is sent before the first resolved.
	ErrTurnInProgress = errors.New("a turn is already in progress")

	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message cannot be empty")
)
