package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"feedesk/internal/core"
	"feedesk/internal/feeapi/rest"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation sentinel", core.ErrMissingTerm, http.StatusUnprocessableEntity, "Term is required."},
		{"wrapped validation", fmt.Errorf("create fee: %w", core.ErrMissingProof), http.StatusUnprocessableEntity, "Upload a proof of payment first."},
		{"bare invalid", core.ErrInvalid, http.StatusUnprocessableEntity, "Please check the form."},
		{"in person", core.ErrInPersonNotAllowed, http.StatusForbidden, "Only administrators can record in-person payments."},
		{"forbidden", fmt.Errorf("%w: manage fees", core.ErrForbidden), http.StatusForbidden, msgForbidden},
		{"not found", fmt.Errorf("fee f1: %w", core.ErrNotFound), http.StatusNotFound, msgNotFound},
		{"api unauthorized", &rest.APIError{StatusCode: 401, Message: "token expired"}, http.StatusUnauthorized, msgSignIn},
		{"api forbidden", &rest.APIError{StatusCode: 403}, http.StatusForbidden, msgForbidden},
		{"api not found", fmt.Errorf("verify: %w", &rest.APIError{StatusCode: 404}), http.StatusNotFound, msgNotFound},
		{"api rejected", &rest.APIError{StatusCode: 400, Message: "amount exceeds balance"}, http.StatusUnprocessableEntity, "Amount exceeds balance."},
		{"api down", &rest.APIError{StatusCode: 503, Message: "maintenance"}, http.StatusBadGateway, msgUnavailable},
		{"timeout", fmt.Errorf("list fees: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, msgTimeout},
		{"transport", errors.New("dial tcp: connection refused"), http.StatusBadGateway, msgUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := classify(tt.err)
			if status != tt.status || msg != tt.msg {
				t.Errorf("classify(%v) = %d %q, want %d %q", tt.err, status, msg, tt.status, tt.msg)
			}
		})
	}
}

func TestSentence(t *testing.T) {
	tests := map[string]string{
		"":                    "",
		"  term missing ":     "Term missing.",
		"Already a sentence.": "Already a sentence.",
	}
	for in, want := range tests {
		if got := sentence(in); got != want {
			t.Errorf("sentence(%q) = %q, want %q", in, got, want)
		}
	}
}
