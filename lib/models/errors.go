package models

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound is returned when no row exists at the expected key.
	ErrNotFound = errors.New("subscription not found")

	// ErrBadRequest is returned when a required parameter is missing or invalid.
	ErrBadRequest = errors.New("bad request")

	// ErrMalformedRecord is returned when a stored row cannot be decoded into a subscription.
	ErrMalformedRecord = errors.New("malformed subscription record")

	// ErrStoreUnavailable is returned when the backing store fails an execute, batch or paginate call.
	ErrStoreUnavailable = errors.New("subscription store unavailable")

	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrSubscribeFailed is the operation-level failure of subscribe and its bulk variants.
	ErrSubscribeFailed = errors.New("error while subscribing for artifact")
)

// StatusCode maps an error from this module onto an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
