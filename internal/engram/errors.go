package engram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Sentinel errors returned (wrapped) by every Client method.
var (
	ErrUnauthorized       = errors.New("engram: unauthorized")
	ErrNotFound           = errors.New("engram: not found")
	ErrRateLimited        = errors.New("engram: rate limited")
	ErrServiceUnavailable = errors.New("engram: service unavailable")
	ErrInvalidRequest     = errors.New("engram: invalid request")
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("engram: HTTP %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("engram: HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code to a sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return ErrUnauthorized
	case e.StatusCode == 404:
		return ErrNotFound
	case e.StatusCode == 429:
		return ErrRateLimited
	case e.StatusCode == 400 || e.StatusCode == 422:
		return ErrInvalidRequest
	case e.StatusCode >= 500:
		return ErrServiceUnavailable
	default:
		return nil
	}
}

// errorBody covers both error shapes the service emits: the framework's
// {"detail": ...} and the explicit {"error", "error_code"} envelope.
type errorBody struct {
	Detail    json.RawMessage `json:"detail"`
	Error     string          `json:"error"`
	ErrorCode string          `json:"error_code"`
}

// mapHTTPError converts a status code and body into an *APIError.
// Returns nil for 2xx status codes.
func mapHTTPError(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: statusCode}
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		apiErr.Code = eb.ErrorCode
		switch {
		case eb.Error != "":
			apiErr.Message = eb.Error
		case len(eb.Detail) > 0:
			apiErr.Message = detailMessage(eb.Detail)
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// detailMessage flattens a "detail" value, which is a string for handler
// errors and a list of field errors for validation failures.
func detailMessage(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if json.Unmarshal(raw, &items) == nil && len(items) > 0 {
		parts := make([]string, 0, len(items))
		for _, it := range items {
			loc := make([]string, 0, len(it.Loc))
			for _, l := range it.Loc {
				loc = append(loc, fmt.Sprint(l))
			}
			parts = append(parts, strings.Join(loc, ".")+": "+it.Msg)
		}
		return strings.Join(parts, "; ")
	}
	return string(raw)
}

// mapConnectionError maps transport failures to ErrServiceUnavailable.
// Context errors pass through unchanged.
func mapConnectionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	return fmt.Errorf("engram: %w", err)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
