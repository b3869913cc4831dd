package errors

import (
	stderrors "errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

type ErrorType string

const (
	ErrTypeInvalidInput      ErrorType = "INVALID_INPUT"
	ErrTypeOverloaded        ErrorType = "OVERLOADED"
	ErrTypeFallbackExhausted ErrorType = "FALLBACK_EXHAUSTED"
	ErrTypeUnavailable       ErrorType = "UNAVAILABLE"
	ErrTypeNotFound          ErrorType = "NOT_FOUND"
	ErrTypeInternal          ErrorType = "INTERNAL"
)

type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Stack   []byte
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) StackTrace() []byte {
	return e.Stack
}

func New(errType ErrorType, message string, err error) *DomainError {
	var stack []byte
	if err != nil {
		if stackErr, ok := err.(*goerrors.Error); ok {
			stack = stackErr.Stack()
		} else {
			stack = goerrors.Wrap(err, 2).Stack()
		}
	} else {
		stack = goerrors.New(message).Stack()
	}

	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Stack:   stack,
	}
}

func InvalidInput(message string, err error) *DomainError {
	return New(ErrTypeInvalidInput, message, err)
}

// Overloaded signals that the caller should retry shortly. It is never
// a failure of the search itself.
func Overloaded(message string, err error) *DomainError {
	return New(ErrTypeOverloaded, message, err)
}

func FallbackExhausted(message string, err error) *DomainError {
	return New(ErrTypeFallbackExhausted, message, err)
}

func Unavailable(message string, err error) *DomainError {
	return New(ErrTypeUnavailable, message, err)
}

func NotFound(message string, err error) *DomainError {
	return New(ErrTypeNotFound, message, err)
}

func Internal(message string, err error) *DomainError {
	return New(ErrTypeInternal, message, err)
}

// TypeOf returns the type of the first DomainError in err's chain, or
// ErrTypeInternal when there is none.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Type
	}
	return ErrTypeInternal
}

func Is(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	var de *DomainError
	return stderrors.As(err, &de) && de.Type == t
}
