package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/vango-dev/bigpipe/pkg/pipe"
)

// Category represents the type of error.
type Category string

const (
	CategoryRender    Category = "render"
	CategoryTransport Category = "transport"
	CategoryConfig    Category = "config"
	CategoryAssets    Category = "assets"
	CategoryCLI       Category = "cli"
)

// Location points into a source or configuration file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// PipeError is a coded error with an explanation and a fix suggestion.
type PipeError struct {
	// Code is a unique error identifier (e.g., "E001").
	Code string

	// Category is the error type.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Pagelet is the id of the pagelet involved, if any.
	Pagelet string

	// Location is the file position the error refers to, if any.
	Location *Location

	// Context contains the lines around Location.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *PipeError) Error() string {
	msg := e.Message
	if e.Pagelet != "" {
		msg = fmt.Sprintf("%s (pagelet %q)", msg, e.Pagelet)
	}
	if e.Wrapped != nil {
		msg = msg + ": " + e.Wrapped.Error()
	}
	if e.Code != "" {
		return e.Code + ": " + msg
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *PipeError) Unwrap() error {
	return e.Wrapped
}

// WithLocation points the error at a file position and loads the
// surrounding lines when the file is readable.
func (e *PipeError) WithLocation(file string, line, column int) *PipeError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, contextSize)
	return e
}

// lineRef matches the "line N" fragment yaml and json decoders put in
// their messages.
var lineRef = regexp.MustCompile(`line (\d+)`)

// WithLocationFromError extracts a line number from a decoder error
// message and points the error at file.
func (e *PipeError) WithLocationFromError(file string, err error) *PipeError {
	if err == nil {
		return e
	}
	if m := lineRef.FindStringSubmatch(err.Error()); m != nil {
		if line, convErr := strconv.Atoi(m[1]); convErr == nil && line > 0 {
			return e.WithLocation(file, line, 0)
		}
	}
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *PipeError) WithSuggestion(s string) *PipeError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *PipeError) WithDetail(d string) *PipeError {
	e.Detail = d
	return e
}

// WithContext replaces the context lines shown around Location.
func (e *PipeError) WithContext(lines []string) *PipeError {
	e.Context = lines
	return e
}

// WithPagelet records the pagelet id involved.
func (e *PipeError) WithPagelet(id string) *PipeError {
	e.Pagelet = id
	return e
}

// Wrap wraps another error.
func (e *PipeError) Wrap(err error) *PipeError {
	e.Wrapped = err
	return e
}

// contextSize is the number of lines shown around a location.
const contextSize = 5

// readContextLines reads up to size lines centered on target.
func readContextLines(filename string, target, size int) []string {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil
	}
	all := strings.Split(string(data), "\n")
	start := max(target-size/2, 1)
	end := min(target+size/2, len(all))
	if start > end {
		return nil
	}
	return all[start-1 : end]
}

// New creates a PipeError from a registered error code.
func New(code string) *PipeError {
	template, ok := registry[code]
	if !ok {
		return &PipeError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &PipeError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
		DocURL:     template.DocURL,
	}
}

// Newf creates a PipeError with a formatted message and no code.
func Newf(category Category, format string, args ...any) *PipeError {
	return &PipeError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err under code unless it already is a PipeError.
func FromError(err error, code string) *PipeError {
	if err == nil {
		return nil
	}
	var pe *PipeError
	if stderrors.As(err, &pe) {
		return pe
	}
	return New(code).Wrap(err)
}

// Classify maps the errors returned by the pipe package to their codes.
// Anything else is wrapped as a generic render failure.
func Classify(err error) *PipeError {
	if err == nil {
		return nil
	}

	var (
		pe           *PipeError
		producerErr  *pipe.ProducerError
		transportErr *pipe.TransportError
	)
	switch {
	case stderrors.As(err, &pe):
		return pe
	case stderrors.Is(err, pipe.ErrDuplicateID), stderrors.Is(err, pipe.ErrInvalidID):
		return New("E001").Wrap(err)
	case stderrors.Is(err, pipe.ErrReentrant):
		e := New("E003").Wrap(err)
		if stderrors.As(err, &producerErr) {
			e.Pagelet = producerErr.ID
		}
		return e
	case stderrors.As(err, &producerErr):
		return New("E002").WithPagelet(producerErr.ID).Wrap(producerErr.Err)
	case stderrors.As(err, &transportErr):
		return New("E004").WithPagelet(transportErr.ID).Wrap(transportErr.Err)
	default:
		return New("E005").Wrap(err)
	}
}
