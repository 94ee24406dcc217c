package execution

import (
	"errors"
	"fmt"
)

// ErrNoCredential indicates a submission was attempted without a bearer
// token. Checked before any network call.
var ErrNoCredential = errors.New("no credential available, authentication required")

// ErrConversationPending indicates the callback responded but the
// platform has not produced a conversation id yet. Retryable.
var ErrConversationPending = errors.New("conversation id not available yet")

// ErrResolutionTimeout indicates the conversation id never appeared
// within the configured attempt budget.
var ErrResolutionTimeout = errors.New("timed out waiting for conversation id")

// SubmissionError describes a rejected or failed execution submission.
type SubmissionError struct {
	Status int
	Body   string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to create execution: %v", e.Err)
	}
	return fmt.Sprintf("failed to create execution: status %d: %s", e.Status, e.Body)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// ResolutionError describes a failed conversation id lookup.
type ResolutionError struct {
	Status int
	Body   string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to resolve conversation id: %v", e.Err)
	}
	return fmt.Sprintf("failed to resolve conversation id: status %d: %s", e.Status, e.Body)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
