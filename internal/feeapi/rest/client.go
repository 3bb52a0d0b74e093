// Package rest implements the feeapi ports against the school fee REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"feedesk/internal/core"
	"feedesk/internal/feeapi"
	"feedesk/internal/identity"
)

// Ensure interface conformance
var _ feeapi.Backend = (*Client)(nil)

// APIError is a non-2xx answer from the fee API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fee api: %d %s", e.StatusCode, e.Message)
}

// Client talks JSON to the fee API. The acting user's bearer token is taken
// from the request context.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
}

// New creates a client for baseURL. timeout bounds every single call.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base url %q: scheme must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: u, http: newHTTPClientWithPooling(), timeout: timeout}, nil
}

// newHTTPClientWithPooling creates an HTTP client with connection pooling and keep-alive.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport}
}

func (c *Client) ListFees(ctx context.Context) ([]core.Fee, error) {
	var fees []core.Fee
	if err := c.getList(ctx, "/fees", nil, &fees); err != nil {
		return nil, fmt.Errorf("list fees: %w", err)
	}
	return fees, nil
}

func (c *Client) OverdueFees(ctx context.Context) ([]core.Fee, error) {
	var fees []core.Fee
	if err := c.getList(ctx, "/fees/overdue", nil, &fees); err != nil {
		return nil, fmt.Errorf("list overdue fees: %w", err)
	}
	return fees, nil
}

func (c *Client) FeeStats(ctx context.Context) (core.FeeStats, error) {
	var st core.FeeStats
	if err := c.do(ctx, http.MethodGet, "/fees/stats", nil, nil, &st); err != nil {
		return core.FeeStats{}, fmt.Errorf("fee stats: %w", err)
	}
	return st, nil
}

func (c *Client) CreateFee(ctx context.Context, d core.FeeDraft) (core.Fee, error) {
	var fee core.Fee
	if err := c.do(ctx, http.MethodPost, "/fees", nil, d, &fee); err != nil {
		return core.Fee{}, fmt.Errorf("create fee: %w", err)
	}
	return fee, nil
}

func (c *Client) UpdateFee(ctx context.Context, id string, u core.FeeUpdate) (core.Fee, error) {
	var fee core.Fee
	if err := c.do(ctx, http.MethodPut, "/fees/"+url.PathEscape(id), nil, u, &fee); err != nil {
		return core.Fee{}, fmt.Errorf("update fee %s: %w", id, err)
	}
	return fee, nil
}

func (c *Client) ListPayments(ctx context.Context, status core.PaymentStatus) ([]core.Payment, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	var payments []core.Payment
	if err := c.getList(ctx, "/payments", q, &payments); err != nil {
		return nil, fmt.Errorf("list payments (status=%q): %w", status, err)
	}
	return payments, nil
}

func (c *Client) RecentPayments(ctx context.Context, limit int) ([]core.Payment, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	var payments []core.Payment
	if err := c.getList(ctx, "/fees/recent-payments", q, &payments); err != nil {
		return nil, fmt.Errorf("recent payments: %w", err)
	}
	return payments, nil
}

func (c *Client) RecordPayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	var created core.Payment
	if err := c.do(ctx, http.MethodPost, "/payments", nil, p, &created); err != nil {
		return core.Payment{}, fmt.Errorf("record payment: %w", err)
	}
	return created, nil
}

func (c *Client) VerifyPayment(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(id)+"/verify", nil, nil, nil); err != nil {
		return fmt.Errorf("verify payment %s: %w", id, err)
	}
	return nil
}

func (c *Client) RejectPayment(ctx context.Context, id string, reason string) error {
	body := struct {
		Reason string `json:"reason"`
	}{Reason: reason}
	if err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(id)+"/reject", nil, body, nil); err != nil {
		return fmt.Errorf("reject payment %s: %w", id, err)
	}
	return nil
}

func (c *Client) ListStudents(ctx context.Context) ([]core.Student, error) {
	var students []core.Student
	if err := c.getList(ctx, "/students", nil, &students); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// UploadProof sends a multipart upload tagged as a payment proof and returns
// the stored file's url, or its path when the API answers with one.
func (c *Client) UploadProof(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("upload proof: create part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("upload proof: copy file: %w", err)
	}
	if err := mw.WriteField("type", feeapi.ProofUploadType); err != nil {
		return "", fmt.Errorf("upload proof: write type: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("upload proof: close writer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodPost, "/upload", nil, &buf)
	if err != nil {
		return "", fmt.Errorf("upload proof: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		URL  string `json:"url"`
		Path string `json:"path"`
	}
	if err := c.send(req, &out); err != nil {
		return "", fmt.Errorf("upload proof: %w", err)
	}
	location := out.URL
	if location == "" {
		location = out.Path
	}
	if location == "" {
		return "", errors.New("upload proof: response carries neither url nor path")
	}
	return location, nil
}

// Ping checks that the API answers. Used by the readiness probe, which has
// no session, so any HTTP answer counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListFees(ctx)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return nil
	}
	return err
}

// getList decodes a JSON array into out. Any other payload shape yields an empty list.
func (c *Client) getList(ctx context.Context, path string, q url.Values, out any) error {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, q, nil, &raw); err != nil {
		return err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		slog.WarnContext(ctx, "Fee API list payload is not an array, treating as empty", "path", path)
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, q, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	target := c.baseURL.String() + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if id, ok := identity.FromContext(ctx); ok && id.Token != "" {
		req.Header.Set("Authorization", "Bearer "+id.Token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	slog.DebugContext(req.Context(), "Fee API call",
		"method", req.Method,
		"path", req.URL.Path,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts {"message"} or {"error"} from an error body.
func errorMessage(status int, data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" && len(text) < 200 && !strings.HasPrefix(text, "<") {
		return text
	}
	return http.StatusText(status)
}
