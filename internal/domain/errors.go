package domain

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrEmbedding       = errors.New("embedding failed")
	ErrIndexConnection = errors.New("index connection failed")
	ErrIndexQuery      = errors.New("index query failed")
	ErrGeneration      = errors.New("generation failed")
	ErrChunking        = errors.New("chunking failed")
	ErrCancelled       = errors.New("operation cancelled")
)

// Error carries a kind from the list above, a headline for end users and
// technical details kept apart from it.
type Error struct {
	Kind    error
	Op      string
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// Errorf builds an *Error of the given kind with a formatted headline.
func Errorf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new *Error of the given kind.
func Wrap(kind error, op string, err error, message string) *Error {
	e := &Error{Kind: kind, Op: op, Message: message, Err: err}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// Headline returns the human readable part of err.
func Headline(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		if de.Message != "" {
			return de.Message
		}
		return de.Kind.Error()
	}
	return err.Error()
}

// Detail returns the technical part of err, if it has one.
func Detail(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Details
	}
	return ""
}

// KindOf returns the taxonomy kind of err, or nil for foreign errors.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation, ErrEmbedding, ErrIndexConnection, ErrIndexQuery,
		ErrGeneration, ErrChunking, ErrCancelled,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

var subjectPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidateSubject checks a subject or index label.
func ValidateSubject(subject string) error {
	if !subjectPattern.MatchString(subject) {
		return Errorf(ErrValidation, "validate subject",
			"subject %q must contain only lowercase letters, digits and hyphens", subject)
	}
	return nil
}
