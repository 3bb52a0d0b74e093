package http

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"feedesk/internal/core"
	"feedesk/internal/identity"
	"feedesk/internal/log"
	"feedesk/internal/services"
)

func (s *Server) handleVerificationPage(w http.ResponseWriter, r *http.Request) {
	if id, _ := identity.FromContext(r.Context()); !id.Role.CanVerifyPayments() {
		s.renderError(w, r, http.StatusForbidden, "Only administrators and bursars can verify payments.")
		return
	}
	filter, err := services.ParseFilter(r.URL.Query().Get("status"))
	if err != nil {
		filter = services.StatusFilter(core.PaymentPendingVerification)
	}
	s.render(w, r, http.StatusOK, "verification.html", verificationView{
		page:    s.newPage(r, "Payment verification", "verification"),
		List:    s.loadPayments(r, filter),
		Filters: services.Filters,
	})
}

// handlePaymentList renders the payment-list partial for the selected filter.
func (s *Server) handlePaymentList(w http.ResponseWriter, r *http.Request) {
	filter, err := services.ParseFilter(r.URL.Query().Get("status"))
	if err != nil {
		s.mutationError(w, r, log.OpList, err)
		return
	}
	view := s.loadPayments(r, filter)
	status := http.StatusOK
	if view.Error != "" {
		status = http.StatusBadGateway
	}
	s.render(w, r, status, "payment_list", view)
}

func (s *Server) loadPayments(r *http.Request, filter services.StatusFilter) paymentListView {
	payments, err := s.verification.List(r.Context(), filter)
	if err != nil {
		status, msg := classify(err)
		logFailure(r, log.OpList, status, err)
		return paymentListView{Filter: filter, Error: msg}
	}
	view := paymentListView{Filter: filter, Payments: payments}
	if filter.Status() == core.PaymentPendingVerification {
		view.Pending = len(payments)
		return view
	}
	if n, err := s.verification.PendingCount(r.Context()); err != nil {
		status, _ := classify(err)
		logFailure(r, log.OpList, status, err)
	} else {
		view.Pending = n
	}
	return view
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	err := s.verification.Verify(r.Context(), chi.URLParam(r, "id"))
	s.metrics.observeAction("verify_payment", err)
	if err != nil {
		s.mutationError(w, r, log.OpVerify, err)
		return
	}
	NewHTMXResponse().
		TriggerPaymentsChanged().
		TriggerFeesChanged().
		TriggerSuccessNotification("Payment verified.").
		Write(w)
}

func (s *Server) handleRejectDialog(w http.ResponseWriter, r *http.Request) {
	if id, _ := identity.FromContext(r.Context()); !id.Role.CanVerifyPayments() {
		s.mutationError(w, r, log.OpReject, fmt.Errorf("%w: verify payments", core.ErrForbidden))
		return
	}
	s.render(w, r, http.StatusOK, "reject_dialog", rejectView{PaymentID: chi.URLParam(r, "id")})
}

func (s *Server) handleRejectPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := parseFormOrFail(w, r)
	if !ok {
		return
	}
	err := s.verification.Reject(r.Context(), chi.URLParam(r, "id"), services.RejectInput{Reason: p.Get("reason")})
	s.metrics.observeAction("reject_payment", err)
	if err != nil {
		s.mutationError(w, r, log.OpReject, err)
		return
	}
	NewHTMXResponse().
		TriggerPaymentsChanged().
		TriggerFeesChanged().
		TriggerModalClose().
		TriggerFormReset().
		TriggerSuccessNotification("Payment rejected.").
		Write(w)
}
