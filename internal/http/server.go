package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"

	"feedesk/internal/backend"
	"feedesk/internal/identity"
	"feedesk/internal/log"
	"feedesk/internal/middleware/ratelimit"
	"feedesk/internal/middleware/security"
	"feedesk/internal/middleware/trace"
	"feedesk/internal/services"
	appweb "feedesk/web"
)

// Options configures a Server.
type Options struct {
	Addr string
	// Provider resolves the signed-in user of every screen request.
	Provider identity.Provider
	// CSRFKey enables CSRF protection when set. It must be 32 bytes.
	CSRFKey []byte
	// ProofBaseURL resolves proof paths returned by the fee API into links.
	ProofBaseURL       string
	SecureCookies      bool
	RateLimitPerMinute int
	Logger             *log.Logger
}

// Server embeds http.Server and holds the screen services.
type Server struct {
	*http.Server
	templates    *template.Template
	backend      backend.Backend
	fees         *services.FeeList
	recorder     *services.PaymentRecorder
	verification *services.PaymentVerification
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	metrics      *metrics
	logger       *log.Logger
	started      time.Time
}

// NewServer configures routes and templates, returning a ready-to-run server.
// events may be nil, in which case payment events are not published.
func NewServer(be backend.Backend, events services.EventPublisher, opts Options) (*Server, error) {
	if be == nil {
		return nil, errors.New("backend is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("identity provider is required")
	}
	if opts.CSRFKey != nil && len(opts.CSRFKey) != 32 {
		return nil, fmt.Errorf("CSRF key must be 32 bytes, got %d", len(opts.CSRFKey))
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	proofs, err := newProofLinker(opts.ProofBaseURL)
	if err != nil {
		return nil, err
	}
	t, err := template.New("").Funcs(templateFuncs(proofs)).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}

	s := &Server{
		templates:    t,
		backend:      be,
		fees:         services.NewFeeList(be),
		recorder:     services.NewPaymentRecorder(be, events),
		verification: services.NewPaymentVerification(be, events),
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:     security.NewDetector(),
		logger:       logger,
		started:      time.Now(),
	}
	s.metrics = newMetrics(s.limiter, s.detector)

	s.Server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(opts, static),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(opts Options, static fs.FS) http.Handler {
	r := chi.NewRouter()
	r.Use(
		trace.NewMiddleware(s.logger, s.detector.ExtractClientIP).Middleware,
		chimw.Recoverer,
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		s.detector.Middleware,
		s.metrics.instrument,
	)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", s.metrics.handler())
	r.With(security.StaticAssetMiddleware(3600)).
		Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Group(func(r chi.Router) {
		r.Use(security.NoStore)
		r.Use(identity.Middleware(opts.Provider, s.unauthorized))
		if opts.CSRFKey != nil {
			r.Use(csrf.Protect(opts.CSRFKey,
				csrf.Secure(opts.SecureCookies),
				csrf.Path("/"),
				csrf.HttpOnly(true),
				csrf.SameSite(csrf.SameSiteStrictMode),
				csrf.CookieName("feedesk_csrf"),
				csrf.ErrorHandler(http.HandlerFunc(s.csrfFailed)),
			))
		}
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.rateLimited))

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/fees", http.StatusFound)
		})

		r.Get("/fees", s.handleFeesPage)
		r.Post("/fees", s.handleCreateFee)
		r.Get("/ui/fee-list", s.handleFeeList)
		r.Get("/fees/{id}/edit", s.handleEditFee)
		r.Post("/fees/{id}", s.handleUpdateFee)
		r.Get("/fees/{id}/pay", s.handlePayDialog)
		r.Post("/fees/{id}/proof", s.handleUploadProof)
		r.Post("/fees/{id}/payments", s.handleRecordPayment)

		r.Get("/payments/verification", s.handleVerificationPage)
		r.Get("/ui/payments", s.handlePaymentList)
		r.Post("/payments/{id}/verify", s.handleVerifyPayment)
		r.Get("/payments/{id}/reject", s.handleRejectDialog)
		r.Post("/payments/{id}/reject", s.handleRejectPayment)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusNotFound, "This page does not exist.")
	})
	return r
}

// Shutdown stops the rate limiter and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

// unauthorized answers requests without a valid session.
func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	log.FromContext(r.Context()).InfoContext(r.Context(), "Request without valid session",
		log.FieldPath, r.URL.Path, log.FieldError, err)
	if isHTMX(r) {
		ErrorResponse(http.StatusUnauthorized, msgSignIn).Write(w)
		return
	}
	s.renderError(w, r, http.StatusUnauthorized, "Please sign in to continue.")
}

func (s *Server) csrfFailed(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "CSRF check failed",
		log.FieldComponent, log.ComponentSecurity,
		log.FieldPath, r.URL.Path,
		"reason", csrf.FailureReason(r))
	ErrorResponse(http.StatusForbidden, "Your form has expired. Reload the page and try again.").Write(w)
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.detector.ExtractClientIP(r))
	ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please wait a minute and try again.").Write(w)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
