package client

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/qrdine/internal/wire"
)

// Response classes.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrAlreadyReviewed = errors.New("order already reviewed")
	ErrUnrecoverable   = errors.New("order cannot be recreated")
	ErrUnauthorized    = errors.New("unauthorized")
)

// TransportError is a failure to reach the server or a 5xx answer. It is
// safe to retry: the server changed no state the caller can observe.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: server error %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError is a request the server refused as malformed. Retrying
// it unchanged fails again.
type ValidationError struct {
	Status  int
	Message string
	Details map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request (%d): %s", e.Status, e.Message)
}

// IsRetryable reports whether err is a transport failure.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func decodeError(op string, status int, raw []byte) error {
	var body wire.Error
	if err := wire.Unmarshal(raw, &body); err != nil || body.Message == "" {
		body.Message = http.StatusText(status)
	}

	switch {
	case status >= http.StatusInternalServerError:
		return &TransportError{Op: op, Status: status, Err: errors.New(body.Message)}
	case body.Kind == wire.KindAlreadyReviewed:
		return ErrAlreadyReviewed
	case body.Kind == wire.KindUnrecoverable:
		return errors.Wrap(ErrUnrecoverable, body.Message)
	case status == http.StatusNotFound:
		return errors.Wrap(ErrNotFound, body.Message)
	case status == http.StatusConflict:
		return errors.Wrap(ErrConflict, body.Message)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return errors.Wrap(ErrUnauthorized, body.Message)
	default:
		return &ValidationError{Status: status, Message: body.Message, Details: body.Details}
	}
}
