package llm

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/ticketflow/types"
)

// mapHTTPError converts an upstream HTTP status into a structured error with
// the appropriate retryability flag.
func mapHTTPError(status int, msg string) *types.Error {
	switch status {
	case http.StatusUnauthorized:
		return types.NewError(types.ErrUnauthorized, msg).WithHTTPStatus(status).
			WithSuggestions("check API credentials")
	case http.StatusForbidden:
		return types.NewError(types.ErrForbidden, msg).WithHTTPStatus(status)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).WithHTTPStatus(status).WithRetryable(true)
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") {
			return types.NewError(types.ErrQuotaExceeded, msg).WithHTTPStatus(status)
		}
		return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(status)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return types.NewError(types.ErrUpstreamError, msg).WithHTTPStatus(status).WithRetryable(true)
	case 529: // overloaded, returned by some model hosts
		return types.NewError(types.ErrModelOverloaded, msg).WithHTTPStatus(status).WithRetryable(true)
	default:
		e := types.NewError(types.ErrUpstreamError, msg).WithHTTPStatus(status)
		if status >= 500 {
			e = e.WithRetryable(true)
		}
		return e
	}
}

// readErrorMessage extracts a human-readable message from an error response
// body, falling back to the raw text when it is not the usual JSON envelope.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return "failed to read error response"
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}

	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return "upstream returned an empty error response"
	}
	return msg
}
