package submission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-formengine/pkg/validation"
)

// ErrValidation matches every *ValidationFailure via errors.Is.
var ErrValidation = errors.New("submission: validation failed")

// ErrTransport matches every *TransportError via errors.Is.
var ErrTransport = errors.New("submission: transport failed")

// ValidationFailure blocks a submission. The transport was not called.
type ValidationFailure struct {
	Errors validation.ErrorMap
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("submission: validation failed for %s", strings.Join(e.Errors.Keys(), ", "))
}

func (e *ValidationFailure) Is(target error) bool {
	return target == ErrValidation
}

// TransportError is a remote or network failure. Message is opaque and meant
// for display; the session values are untouched so the user can retry.
type TransportError struct {
	Op      string
	Message string
	Err     error
}

// DefaultTransportMessage is shown when the transport gave no message.
const DefaultTransportMessage = "The form could not be sent. Please try again."

func (e *TransportError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = DefaultTransportMessage
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("submission: %s: %v", msg, e.Err)
	}
	return "submission: " + msg
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable is always true: the engine does not inspect remote failures.
func (e *TransportError) Retryable() bool {
	return true
}

// asTransportError wraps err unless the transport already returned a
// *TransportError.
func asTransportError(op string, err error) *TransportError {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		dup := *transportErr
		if dup.Op == "" {
			dup.Op = op
		}
		return &dup
	}
	return &TransportError{Op: op, Message: DefaultTransportMessage, Err: err}
}
