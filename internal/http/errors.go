package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"feedesk/internal/core"
	"feedesk/internal/feeapi/rest"
	"feedesk/internal/identity"
	"feedesk/internal/log"
)

const (
	msgUnavailable = "The fee service is unavailable. Please try again."
	msgTimeout     = "The fee service did not answer in time. Please try again."
	msgForbidden   = "You are not allowed to do this."
	msgNotFound    = "That record no longer exists."
	msgSignIn      = "Your session has expired. Please sign in again."
)

// classify maps an error to the status and the message shown to the user.
// Validation messages are the user's to read; anything from the transport is
// replaced by a generic message.
func classify(err error) (int, string) {
	var apiErr *rest.APIError
	switch {
	case errors.Is(err, core.ErrInPersonNotAllowed):
		return http.StatusForbidden, detail(core.ErrInPersonNotAllowed, core.ErrForbidden)
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden, msgForbidden
	case core.IsValidation(err):
		if msg := detail(err, core.ErrInvalid); msg != "" {
			return http.StatusUnprocessableEntity, msg
		}
		return http.StatusUnprocessableEntity, "Please check the form."
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized:
			return http.StatusUnauthorized, msgSignIn
		case apiErr.StatusCode == http.StatusForbidden:
			return http.StatusForbidden, msgForbidden
		case apiErr.StatusCode == http.StatusNotFound:
			return http.StatusNotFound, msgNotFound
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			return http.StatusUnprocessableEntity, sentence(apiErr.Message)
		}
		return http.StatusBadGateway, msgUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, msgTimeout
	default:
		return http.StatusBadGateway, msgUnavailable
	}
}

// detail returns the text following the sentinel in err's message, as a sentence.
func detail(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return sentence(msg[i+len(prefix):])
	}
	if msg == sentinel.Error() {
		return ""
	}
	return sentence(msg)
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	s = string(unicode.ToUpper(r)) + s[size:]
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}

// mutationError answers a failed action. Client-side problems are logged at
// info, upstream failures at error.
func (s *Server) mutationError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := classify(err)
	logFailure(r, op, status, err)
	ErrorResponse(status, msg).Write(w)
}

func logFailure(r *http.Request, op string, status int, err error) {
	ctx := r.Context()
	fields := log.NewFields().WithOperation(op).WithError(err)
	if id, ok := identity.FromContext(ctx); ok {
		fields.WithIdentity(id)
	}
	logger := log.FromContext(ctx)
	if status >= 500 {
		log.NewStructuredLogger(logger).LogError(ctx, "Request failed", err, log.ComponentHTTP, op, fields)
		return
	}
	logger.Fields(ctx, slog.LevelInfo, "Request rejected", fields)
}
