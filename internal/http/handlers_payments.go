package http

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"feedesk/internal/core"
	"feedesk/internal/identity"
	"feedesk/internal/log"
	"feedesk/internal/services"
)

// maxProofBytes bounds a proof upload.
const maxProofBytes = 10 << 20

// handlePayDialog opens the recorder for one fee.
func (s *Server) handlePayDialog(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	if !id.Role.CanRecordPayments() {
		s.mutationError(w, r, log.OpRecord, fmt.Errorf("%w: record payments", core.ErrForbidden))
		return
	}
	fee, err := s.fees.FindFee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.mutationError(w, r, log.OpRecord, err)
		return
	}
	if !fee.IsPayable() {
		UnprocessableEntityError("This fee has nothing left to pay.").Write(w)
		return
	}
	s.render(w, r, http.StatusOK, "payment_form", paymentFormView{
		Fee:     fee,
		Form:    s.recorder.NewForm(fee),
		Methods: s.recorder.Methods(id),
	})
}

// handleUploadProof stores the proof file and answers with the proof field
// carrying its url, which the payment form submits as proof_url.
func (s *Server) handleUploadProof(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxProofBytes)
	if err := r.ParseMultipartForm(maxProofBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			UnprocessableEntityError("The proof file is larger than 10 MB.").Write(w)
			return
		}
		BadRequestError("The upload could not be read.").Write(w)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("proof")
	if err != nil {
		UnprocessableEntityError("Choose a file to upload.").Write(w)
		return
	}
	defer func() { _ = file.Close() }()

	url, err := s.recorder.UploadProof(r.Context(), header.Filename, file)
	s.metrics.observeAction("upload_proof", err)
	if err != nil {
		s.mutationError(w, r, log.OpUpload, err)
		return
	}
	s.renderWith(w, r,
		NewHTMXResponse().TriggerSuccessNotification("Proof uploaded."),
		"proof_field", proofFieldView{URL: url, Filename: filepath.Base(header.Filename)})
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := parseFormOrFail(w, r)
	if !ok {
		return
	}
	fee, err := s.fees.FindFee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.mutationError(w, r, log.OpRecord, err)
		return
	}
	payment, err := s.recorder.Submit(r.Context(), fee, services.PaymentInput{
		Method:    p.Get("method"),
		Amount:    p.Get("amount"),
		BankName:  p.Get("bank_name"),
		Reference: p.Get("reference"),
		ProofURL:  p.Get("proof_url"),
		Notes:     p.Get("notes"),
	})
	s.metrics.observeAction("record_payment", err)
	if err != nil {
		s.mutationError(w, r, log.OpRecord, err)
		return
	}

	msg := fmt.Sprintf("Payment of %s submitted for verification.", payment.Amount)
	if payment.Status == core.PaymentVerified {
		msg = fmt.Sprintf("Payment of %s recorded.", payment.Amount)
	}
	NewHTMXResponse().
		TriggerFeesChanged().
		TriggerPaymentsChanged().
		TriggerModalClose().
		TriggerSuccessNotification(msg).
		Write(w)
}
