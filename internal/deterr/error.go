package deterr

import (
	"errors"
	"fmt"
)

// DetError is the structured error envelope.
type DetError struct {
	Type          Type
	Level         Level
	Message       string
	PublicMessage string
	PublicSubject string
	Silent        bool
	Payload       any

	// ID groups errors of the same kind, for example "login-failed".
	ID string

	cause   error
	handled bool
}

// Option adjusts a DetError at construction time.
type Option func(*DetError)

// WithType sets the error type.
func WithType(t Type) Option {
	return func(e *DetError) { e.Type = t }
}

// WithLevel sets the severity.
func WithLevel(l Level) Option {
	return func(e *DetError) { e.Level = l }
}

// WithMessage overrides the internal message.
func WithMessage(msg string) Option {
	return func(e *DetError) { e.Message = msg }
}

// WithPublicMessage sets the text shown to the user.
func WithPublicMessage(msg string) Option {
	return func(e *DetError) { e.PublicMessage = msg }
}

// WithPublicSubject sets the headline shown to the user.
func WithPublicSubject(subject string) Option {
	return func(e *DetError) { e.PublicSubject = subject }
}

// WithSilent marks the error as silent: no notification, no log line.
func WithSilent(silent bool) Option {
	return func(e *DetError) { e.Silent = silent }
}

// WithPayload attaches arbitrary context for logs and analytics.
func WithPayload(payload any) Option {
	return func(e *DetError) { e.Payload = payload }
}

// WithID sets the grouping id.
func WithID(id string) Option {
	return func(e *DetError) { e.ID = id }
}

// New wraps err in a DetError. When err already is (or wraps) a DetError,
// that DetError is reused and opts are applied on top of it. Type and level
// default to the result of Classify.
func New(err error, opts ...Option) *DetError {
	var existing *DetError
	if errors.As(err, &existing) {
		for _, o := range opts {
			o(existing)
		}
		return existing
	}

	e := &DetError{cause: err}
	if err != nil {
		e.Message = err.Error()
	}
	e.Type, e.Level = Classify(err)
	for _, o := range opts {
		o(e)
	}
	if !e.Type.Valid() {
		e.Type = TypeUnknown
	}
	if !e.Level.Valid() {
		e.Level = LevelError
	}
	return e
}

// FromPanic turns a recovered panic value into a fatal UI error.
func FromPanic(r any) *DetError {
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", r)
	}
	return New(err, WithType(TypeUI), WithLevel(LevelFatal))
}

func (e *DetError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.PublicMessage != "" {
		return e.PublicMessage
	}
	return string(e.Type) + " error"
}

// Unwrap returns the wrapped error.
func (e *DetError) Unwrap() error {
	return e.cause
}

// Subject is the public subject or a generic headline.
func (e *DetError) Subject() string {
	if e.PublicSubject != "" {
		return e.PublicSubject
	}
	return defaultPublicSubject
}

// Handled reports whether a Handler has already processed e.
func (e *DetError) Handled() bool {
	return e.handled
}
