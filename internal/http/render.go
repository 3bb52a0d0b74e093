package http

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/csrf"

	"feedesk/internal/core"
	"feedesk/internal/identity"
	"feedesk/internal/log"
	"feedesk/internal/services"
)

// page carries what the layout needs on every full page.
type page struct {
	Title     string
	Nav       string
	Identity  core.Identity
	CSRFToken string
}

type feesView struct {
	page
	List       feeListView
	Categories []core.FeeCategory
}

// feeListView is the fee-list partial; Error replaces the table when the roster failed to load.
type feeListView struct {
	services.FeeListPage
	Error string
}

type feeEditView struct {
	Fee core.Fee
}

type paymentFormView struct {
	Fee     core.Fee
	Form    services.PaymentForm
	Methods []services.MethodOption
}

type proofFieldView struct {
	URL      string
	Filename string
}

type verificationView struct {
	page
	List    paymentListView
	Filters []services.StatusFilter
}

// paymentListView is the payment-list partial. Pending counts the payments
// awaiting verification whatever the filter.
type paymentListView struct {
	Filter   services.StatusFilter
	Payments []core.Payment
	Pending  int
	Error    string
}

type rejectView struct {
	PaymentID string
}

type errorView struct {
	page
	Status  int
	Message string
}

func templateFuncs(proofs proofLinker) template.FuncMap {
	return template.FuncMap{
		"date": func(d core.Date) string {
			if d.IsZero() {
				return "-"
			}
			return d.Format("02 Jan 2006")
		},
		"datetime": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return "-"
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"lower": func(s any) string {
			switch v := s.(type) {
			case core.FeeStatus:
				if v == "" {
					v = core.FeePending
				}
				return strings.ToLower(string(v))
			case core.PaymentStatus:
				return strings.ToLower(string(v))
			case string:
				return strings.ToLower(v)
			default:
				return ""
			}
		},
		"proofHref": proofs.href,
		"studentOf": func(p core.Payment) string {
			if p.Student != nil && p.Student.Name != "" {
				return p.Student.Name
			}
			return p.StudentID
		},
	}
}

// proofLinker turns a stored proof reference into a link the browser can
// follow. The fee API may answer an upload with a path instead of a url; paths
// resolve against the API base url. Proofs held by the bundled backends use
// their own schemes and are shown as text.
type proofLinker struct {
	base *url.URL
}

func newProofLinker(base string) (proofLinker, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return proofLinker{}, nil
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return proofLinker{}, fmt.Errorf("proof base url %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return proofLinker{}, fmt.Errorf("proof base url %q: scheme must be http or https", base)
	}
	return proofLinker{base: u}, nil
}

func (l proofLinker) href(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	switch {
	case u.Scheme == "http" || u.Scheme == "https":
		return u.String()
	case u.Scheme != "" || u.Host != "" || l.base == nil:
		return ""
	}
	return l.base.ResolveReference(u).String()
}

func (s *Server) newPage(r *http.Request, title, nav string) page {
	p := page{Title: title, Nav: nav, CSRFToken: csrf.Token(r)}
	if id, ok := identity.FromContext(r.Context()); ok {
		p.Identity = id
	}
	return p
}

func (s *Server) execute(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// render executes a template into a buffer first so a template failure never
// leaves a half-written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	s.renderWith(w, r, NewHTMXResponse().Status(status), name, data)
}

func (s *Server) renderWith(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	body, err := s.execute(name, data)
	if err != nil {
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Template render failed", err, log.ComponentHTTP, log.OpRender,
				log.LogFields{"template": name})
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	b.BodyHTML(body).Write(w)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.render(w, r, status, "error.html", errorView{
		page:    s.newPage(r, http.StatusText(status), ""),
		Status:  status,
		Message: msg,
	})
}
