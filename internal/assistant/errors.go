package assistant

import (
	"errors"
	"fmt"
)

// Kind classifies assistant failures
type Kind string

const (
	KindInit       Kind = "init"
	KindValidation Kind = "validation"
	KindGeneration Kind = "generation"
	KindProbe      Kind = "probe"
)

var (
	ErrNotInitialized = errors.New("model is not initialized")
	ErrEmptyText      = errors.New("please enter some text")
	ErrHistoryTooLong = errors.New("Conversation history is too long. Please clear history to continue.")
	ErrNoRemote       = errors.New("no inference server configured")
)

// Error is a classified failure of an assistant operation
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
