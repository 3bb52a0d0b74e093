package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"feedesk/internal/core"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFieldsSkipsOwnComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentHTTP, Output: &buf})

	l.Fields(context.Background(), slog.LevelInfo, "done", NewFields().WithComponent(ComponentHTTP).WithOperation(OpList))

	out := buf.String()
	if strings.Count(out, "component=") != 1 {
		t.Errorf("expected a single component attribute: %s", out)
	}
	if !strings.Contains(out, "operation=list") {
		t.Errorf("missing operation: %s", out)
	}
}

func TestWithIdentityOmitsToken(t *testing.T) {
	f := NewFields().WithIdentity(core.Identity{UserID: "u1", Role: core.RoleBursar, SchoolID: "s1", Token: "secret"})
	for _, v := range f {
		if v == "secret" {
			t.Fatal("session token must not be logged")
		}
	}
	if f[FieldRole] != "bursar" || f[FieldSchoolID] != "s1" {
		t.Errorf("unexpected fields %v", f)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: slog.LevelInfo, Output: &buf})

	h := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("inside")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Errorf("request id not attached: %s", buf.String())
	}
}

func TestLogErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelInfo, Output: &buf}))
	sl.LogError(context.Background(), "append failed", errors.New("boom"), ComponentLedger, OpAppend, nil)

	out := buf.String()
	for _, want := range []string{"level=ERROR", "error=boom", "component=ledger", "operation=append"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
}
