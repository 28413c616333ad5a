package errutil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ToBaseError normalises any error returned by a service into a BaseError so the
// transport layer can render it. Unknown errors become INTERNAL.
func ToBaseError(err error) BaseError {
	if err == nil {
		return BaseError{}
	}

	var base BaseError
	if errors.As(err, &base) {
		return base
	}

	if errors.Is(err, context.Canceled) {
		return BaseError{Code: StatusClientClosedRequest, Message: "request canceled", Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return BaseError{Code: StatusTimeout, Message: "request timed out", Err: err}
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return BaseError{Code: StatusValidationFailed, Message: "invalid request", Details: FromValidation(verrs), Err: err}
	}

	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		sizeErr   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return BaseError{Code: StatusBadRequest, Message: "malformed request body", Err: err}
	case errors.As(err, &sizeErr):
		return BaseError{Code: StatusBadRequest, Message: "request body too large", Err: err}
	}

	var coder interface{ Status() CoreStatus }
	if errors.As(err, &coder) {
		return BaseError{Code: coder.Status(), Message: err.Error(), Err: err}
	}

	return BaseError{Code: StatusInternal, Message: "internal server error", Err: err}
}

// FromValidation turns validator field errors into response details.
func FromValidation(verrs validator.ValidationErrors) []Detail {
	details := make([]Detail, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Tag()
		if fe.Param() != "" {
			msg = fe.Tag() + "=" + fe.Param()
		}
		details = append(details, Detail{Field: fe.Field(), Message: msg})
	}
	return details
}
