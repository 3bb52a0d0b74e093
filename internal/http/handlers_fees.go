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

func (s *Server) handleFeesPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "fees.html", feesView{
		page:       s.newPage(r, "Fees", "fees"),
		List:       s.loadFeeList(r),
		Categories: core.Categories,
	})
}

// handleFeeList renders the fee-list partial, refetched on every fees:changed.
func (s *Server) handleFeeList(w http.ResponseWriter, r *http.Request) {
	view := s.loadFeeList(r)
	status := http.StatusOK
	if view.Error != "" {
		status = http.StatusBadGateway
	}
	s.render(w, r, status, "fee_list", view)
}

// loadFeeList never fails: a roster failure becomes the blocking error section.
func (s *Server) loadFeeList(r *http.Request) feeListView {
	pg, err := s.fees.Load(r.Context())
	if err != nil {
		status, msg := classify(err)
		logFailure(r, log.OpList, status, err)
		return feeListView{FeeListPage: pg, Error: msg}
	}
	return feeListView{FeeListPage: pg}
}

func (s *Server) handleCreateFee(w http.ResponseWriter, r *http.Request) {
	p, ok := parseFormOrFail(w, r)
	if !ok {
		return
	}
	fee, err := s.fees.CreateFee(r.Context(), services.CreateFeeInput{
		StudentID: p.Get("student_id"),
		Amount:    p.Get("amount"),
		Term:      p.Get("term"),
		DueDate:   p.Get("due_date"),
		Category:  p.Get("category"),
		Year:      p.Get("year"),
	})
	s.metrics.observeAction("create_fee", err)
	if err != nil {
		s.mutationError(w, r, log.OpCreate, err)
		return
	}

	NewHTMXResponse().
		TriggerFeesChanged().
		TriggerFormReset().
		TriggerModalClose().
		TriggerSuccessNotification(fmt.Sprintf("Fee of %s created for %s.", fee.Amount, fee.StudentName())).
		Write(w)
}

func (s *Server) handleEditFee(w http.ResponseWriter, r *http.Request) {
	if id, _ := identity.FromContext(r.Context()); !id.Role.CanManageFees() {
		s.mutationError(w, r, log.OpUpdate, fmt.Errorf("%w: manage fees", core.ErrForbidden))
		return
	}
	fee, err := s.fees.FindFee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.mutationError(w, r, log.OpUpdate, err)
		return
	}
	s.render(w, r, http.StatusOK, "fee_edit", feeEditView{Fee: fee})
}

func (s *Server) handleUpdateFee(w http.ResponseWriter, r *http.Request) {
	p, ok := parseFormOrFail(w, r)
	if !ok {
		return
	}
	fee, err := s.fees.UpdateFee(r.Context(), chi.URLParam(r, "id"), services.UpdateFeeInput{
		Term:    p.Get("term"),
		Amount:  p.Get("amount"),
		Year:    p.Get("year"),
		DueDate: p.Get("due_date"),
	})
	s.metrics.observeAction("update_fee", err)
	if err != nil {
		s.mutationError(w, r, log.OpUpdate, err)
		return
	}

	NewHTMXResponse().
		TriggerFeesChanged().
		TriggerModalClose().
		TriggerSuccessNotification(fmt.Sprintf("Fee for %s updated.", fee.StudentName())).
		Write(w)
}
