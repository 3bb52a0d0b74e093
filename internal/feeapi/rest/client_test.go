package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"feedesk/internal/core"
	"feedesk/internal/identity"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api/", time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func authed() context.Context {
	return identity.WithIdentity(context.Background(), core.Identity{UserID: "u1", Token: "tok"})
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, in := range []string{"", "ftp://x", "::nope"} {
		if _, err := New(in, time.Second); err == nil {
			t.Errorf("New(%q) expected error", in)
		}
	}
}

func TestListFeesForwardsTokenAndDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/fees" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		_, _ = w.Write([]byte(`[{"id":"f1","studentId":"s1","amount":150,"paidAmount":0,"status":"pending","dueDate":"2025-03-01","student":{"name":"Ada","studentNumber":"A-1"}}]`))
	})
	fees, err := c.ListFees(authed())
	if err != nil {
		t.Fatalf("list fees: %v", err)
	}
	if len(fees) != 1 || fees[0].Amount.Cents != 15000 || fees[0].StudentName() != "Ada" {
		t.Fatalf("fees = %+v", fees)
	}
}

func TestListTreatsNonArrayAsEmpty(t *testing.T) {
	for _, body := range []string{`{"data":[]}`, `null`, ``, `"oops"`} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		fees, err := c.ListFees(authed())
		if err != nil {
			t.Fatalf("body %q: unexpected error %v", body, err)
		}
		if len(fees) != 0 {
			t.Fatalf("body %q: expected empty list, got %v", body, fees)
		}
	}
}

func TestQueryParameters(t *testing.T) {
	var seen []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Path+"?"+r.URL.RawQuery)
		_, _ = w.Write([]byte(`[]`))
	})
	ctx := authed()
	_, _ = c.ListPayments(ctx, core.PaymentPendingVerification)
	_, _ = c.ListPayments(ctx, "")
	_, _ = c.RecentPayments(ctx, 5)

	want := []string{
		"/api/payments?status=PendingVerification",
		"/api/payments?",
		"/api/fees/recent-payments?limit=5",
	}
	if strings.Join(seen, "|") != strings.Join(want, "|") {
		t.Fatalf("requests = %v, want %v", seen, want)
	}
}

func TestCreateAndUpdateFeeBodies(t *testing.T) {
	var bodies []map[string]any
	var methods []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		bodies = append(bodies, m)
		methods = append(methods, r.Method+" "+r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"f9"}`))
	})
	ctx := authed()
	_, err := c.CreateFee(ctx, core.FeeDraft{
		StudentID: "s1", SchoolID: "sch", Amount: core.Money{Cents: 15000},
		Category: core.CategoryTuition, Term: "Term 1", Year: 2025, DueDate: core.NewDate(2025, 3, 1),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.UpdateFee(ctx, "f9", core.FeeUpdate{Amount: &core.Money{Cents: 20000}, Term: "Term 2", Year: 2025}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if methods[0] != "POST /api/fees" || methods[1] != "PUT /api/fees/f9" {
		t.Fatalf("methods = %v", methods)
	}
	create := bodies[0]
	if create["studentId"] != "s1" || create["schoolId"] != "sch" || create["amount"] != 150.0 || create["category"] != "tuition" || create["dueDate"] != "2025-03-01" {
		t.Fatalf("create body = %v", create)
	}
	update := bodies[1]
	if _, ok := update["studentId"]; ok {
		t.Fatalf("update body must not carry studentId: %v", update)
	}
	if _, ok := update["dueDate"]; ok {
		t.Fatalf("absent fields must be omitted: %v", update)
	}
	if update["term"] != "Term 2" || update["amount"] != 200.0 {
		t.Fatalf("update body = %v", update)
	}
}

func TestVerifyAndReject(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, r.Method+" "+r.URL.Path+" "+strings.TrimSpace(string(b)))
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := authed()
	if err := c.VerifyPayment(ctx, "p1"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := c.RejectPayment(ctx, "p2", "illegible proof"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	want := []string{
		"POST /api/payments/p1/verify ",
		`POST /api/payments/p2/reject {"reason":"illegible proof"}`,
	}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls = %q", calls)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   string
	}{
		{http.StatusBadRequest, `{"message":"Fee already exists"}`, "Fee already exists"},
		{http.StatusForbidden, `{"error":"forbidden"}`, "forbidden"},
		{http.StatusInternalServerError, `<html>boom</html>`, "Internal Server Error"},
		{http.StatusConflict, `plain text`, "plain text"},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		})
		_, err := c.CreateFee(authed(), core.FeeDraft{})
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if apiErr.StatusCode != tc.status || apiErr.Message != tc.want {
			t.Fatalf("APIError = %+v, want %d %q", apiErr, tc.status, tc.want)
		}
	}
}

func TestUploadProof(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("type") != "payment-proof" {
			t.Errorf("type = %q", r.FormValue("type"))
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		if hdr.Filename != "slip.png" || string(b) != "PNGDATA" {
			t.Errorf("file = %s %q", hdr.Filename, b)
		}
		_, _ = w.Write([]byte(`{"path":"/uploads/slip.png"}`))
	})
	got, err := c.UploadProof(authed(), "slip.png", strings.NewReader("PNGDATA"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if got != "/uploads/slip.png" {
		t.Fatalf("location = %q", got)
	}

	empty := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	if _, err := empty.UploadProof(authed(), "slip.png", strings.NewReader("x")); err == nil {
		t.Fatalf("expected error when neither url nor path is returned")
	}
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	c, _ := New(srv.URL, 50*time.Millisecond)
	if _, err := c.ListFees(authed()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPingCountsAnyAnswerAsReachable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("401 must count as reachable: %v", err)
	}

	dead, err := New("http://127.0.0.1:1", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := dead.Ping(context.Background()); err == nil {
		t.Fatal("expected error for unreachable API")
	}
}
