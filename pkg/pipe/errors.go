package pipe

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID is returned when a pagelet id is registered twice in
	// the same response. The first registration is kept.
	ErrDuplicateID = errors.New("pipe: duplicate pagelet id")

	// ErrInvalidID is returned for an empty pagelet id.
	ErrInvalidID = errors.New("pipe: pagelet id must not be empty")

	// ErrReentrant is the cause of a ProducerError raised when a producer
	// asks for its own pagelet's content while it is still running.
	ErrReentrant = errors.New("pipe: producer re-entered its own pagelet")
)

// ProducerError reports a failed pagelet producer. It aborts the render
// pass it happened in.
type ProducerError struct {
	ID  string
	Err error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("pipe: pagelet %q: producer failed: %v", e.ID, e.Err)
}

func (e *ProducerError) Unwrap() error {
	return e.Err
}

// TransportError reports a write to the client that failed mid-stream.
type TransportError struct {
	ID  string // pagelet being written, empty for document-level writes
	Err error
}

func (e *TransportError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("pipe: write failed: %v", e.Err)
	}
	return fmt.Sprintf("pipe: write frame %q: %v", e.ID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
