package instruct

import (
	"errors"
	"strings"
)

var (
	// ErrBusy means every attempt failed with a transient error.
	ErrBusy = errors.New("model busy")
	// ErrBadResponse means no attempt produced a parseable reply.
	ErrBadResponse = errors.New("bad model response")
)

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as worth retrying. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked by Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// TransportRetriable matches network-level failures that every backend
// treats as transient.
func TransportRetriable(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unexpected eof") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "rst_stream") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "overloaded")
}

// RetriableStatus reports whether an HTTP status signals server overload.
func RetriableStatus(code int) bool {
	switch code {
	case 408, 409, 429, 500, 502, 503, 504:
		return true
	}
	return false
}
