package errutil

import "fmt"

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// BaseError is the error shape every handler returns to the client. Err is never
// rendered, it only keeps the cause reachable for errors.Is and errors.As.
type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

// JSON renders the body written for failed requests: {"error": {...}}.
func (e BaseError) JSON() interface{} {
	body := map[string]interface{}{
		"code":    e.Code,
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	return map[string]interface{}{"error": body}
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = details }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func newWithCause(code CoreStatus, msg string, err error, options []Option) error {
	if err != nil {
		options = append([]Option{WithErr(err)}, options...)
	}
	return New(code, msg, options...)
}

func NotFound(msg string, err error, options ...Option) error {
	return newWithCause(StatusNotFound, msg, err, options)
}

func UnsupportedMediaType(msg string, err error, options ...Option) error {
	return newWithCause(StatusUnsupportedMediaType, msg, err, options)
}

func Conflict(msg string, err error, options ...Option) error {
	return newWithCause(StatusConflict, msg, err, options)
}

func BadRequest(msg string, err error, options ...Option) error {
	return newWithCause(StatusBadRequest, msg, err, options)
}

func ValidationFailed(msg string, err error, options ...Option) error {
	return newWithCause(StatusValidationFailed, msg, err, options)
}

func Internal(msg string, err error, options ...Option) error {
	return newWithCause(StatusInternal, msg, err, options)
}

func Unauthorized(msg string, err error, options ...Option) error {
	return newWithCause(StatusUnauthorized, msg, err, options)
}

func Forbidden(msg string, err error, options ...Option) error {
	return newWithCause(StatusForbidden, msg, err, options)
}

func NotImplemented(msg string, err error, options ...Option) error {
	return newWithCause(StatusNotImplemented, msg, err, options)
}

