package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/flemzord/recall/internal/chat"
	"github.com/flemzord/recall/internal/engram"
	"github.com/flemzord/recall/internal/prefs"
)

const maxBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeErr maps domain and upstream errors to an HTTP status.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrEmptyTitle),
		errors.Is(err, chat.ErrNoMessages),
		errors.Is(err, prefs.ErrInvalidTheme),
		errors.Is(err, prefs.ErrEmptyIdentity),
		errors.Is(err, engram.ErrInvalidRequest) && !isUpstream(err):
		return http.StatusBadRequest
	case errors.Is(err, engram.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engram.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case isUpstream(err), errors.Is(err, engram.ErrServiceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// isUpstream reports whether err came back from the memory service.
func isUpstream(err error) bool {
	var apiErr *engram.APIError
	return errors.As(err, &apiErr)
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
