// Package apperr defines the error kinds shared across ingestion and search.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindTooLarge
	KindNotFound
	KindLoad
	KindEmbedding
	KindStore
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTooLarge:
		return "too_large"
	case KindNotFound:
		return "not_found"
	case KindLoad:
		return "load"
	case KindEmbedding:
		return "embedding"
	case KindStore:
		return "store"
	case KindIO:
		return "io"
	default:
		return "internal"
	}
}

// Code is the machine-readable code written into error payloads.
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case KindNotFound:
		return "NOT_FOUND"
	case KindLoad:
		return "LOAD_ERROR"
	case KindEmbedding:
		return "EMBEDDING_ERROR"
	case KindStore:
		return "STORE_ERROR"
	case KindIO:
		return "IO_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindNotFound:
		return http.StatusNotFound
	case KindLoad:
		return http.StatusUnprocessableEntity
	case KindEmbedding:
		return http.StatusBadGateway
	case KindStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with kind and op. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kinded error from a format string.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message is the client-facing text for err. Internal and IO failures are
// reported generically; other kinds expose the cause without op prefixes.
func Message(err error) string {
	switch KindOf(err) {
	case KindInternal, KindIO:
		return "internal server error"
	}
	for {
		var e *Error
		if !errors.As(err, &e) {
			return err.Error()
		}
		err = e.Err
	}
}
