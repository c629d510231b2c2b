// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Detailer is implemented by errors carrying field-scoped details.
type Detailer interface {
	Details() any
}

// RespondError maps domain errors to HTTP responses carrying a {message} body.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConflict):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrValidation):
		var d Detailer
		if errors.As(err, &d) {
			JSON(w, http.StatusBadRequest, ErrorBody{Message: err.Error(), Errors: d.Details()})
			return
		}
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrUnauthorized):
		Error(w, http.StatusUnauthorized, err.Error())
	default:
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
