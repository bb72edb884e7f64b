package transport

import (
	"errors"
	"net/http"
)

// StatusCode maps a service error to the HTTP status the relay answers with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotJoinable), errors.Is(err, ErrLobbyFull):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrHostAbsent):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFromStatus is the client-side inverse of StatusCode. The relay's
// message text tells ErrNotJoinable and ErrLobbyFull apart.
func ErrorFromStatus(code int, msg string) error {
	switch code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		if msg == ErrLobbyFull.Error() {
			return ErrLobbyFull
		}
		return ErrNotJoinable
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusServiceUnavailable:
		return ErrHostAbsent
	}
	return nil
}
