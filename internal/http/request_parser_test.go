package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"term":"  Term 2 ","amount":150.5,"notify":true}`
	req := httptest.NewRequest(http.MethodPost, "/fees", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !p.IsJSON() {
		t.Fatal("expected JSON body")
	}
	if got := p.Get("term"); got != "Term 2" {
		t.Errorf("term = %q", got)
	}
	if got := p.Get("amount"); got != "150.5" {
		t.Errorf("amount = %q", got)
	}
	if got := p.Get("notify"); got != "true" {
		t.Errorf("notify = %q", got)
	}
	if got := p.Get("missing"); got != "" {
		t.Errorf("missing = %q", got)
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	form := url.Values{"reason": {" Blurry proof\x00 "}, "method": {"BankDeposit"}}
	req := httptest.NewRequest(http.MethodPost, "/payments/p1/reject", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.IsJSON() {
		t.Fatal("form body parsed as JSON")
	}
	if got := p.Get("reason"); got != "Blurry proof" {
		t.Errorf("reason = %q", got)
	}
	if got := p.Get("method"); got != "BankDeposit" {
		t.Errorf("method = %q", got)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/fees", nil)
	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := p.Get("term"); got != "" {
		t.Errorf("term = %q", got)
	}
}

func TestRequestBodyParser_UsesParsedForm(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/fees", strings.NewReader("term=Term+3"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := req.ParseForm(); err != nil {
		t.Fatalf("ParseForm: %v", err)
	}

	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := p.Get("term"); got != "Term 3" {
		t.Errorf("term = %q", got)
	}
}

func TestParseFormOrFail(t *testing.T) {
	t.Run("too large", func(t *testing.T) {
		big := "notes=" + strings.Repeat("a", maxFormBody)
		req := httptest.NewRequest(http.MethodPost, "/fees", strings.NewReader(big))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()

		if _, ok := parseFormOrFail(rr, req); ok {
			t.Fatal("expected failure")
		}
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rr.Code)
		}
	})

	t.Run("broken json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/fees", strings.NewReader(`{"term":`))
		rr := httptest.NewRecorder()
		if _, ok := parseFormOrFail(rr, req); ok {
			t.Fatal("expected failure")
		}
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rr.Code)
		}
	})
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  plain  ", "plain"},
		{"line one\nline two", "line one\nline two"},
		{"tab\there", "tab\there"},
		{"bell\a", "bell"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
