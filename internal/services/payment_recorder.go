package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"feedesk/internal/core"
	"feedesk/internal/feeapi"
)

// RecorderBackend is what the payment recorder needs from the fee API.
type RecorderBackend interface {
	feeapi.PaymentWriter
	feeapi.ProofUploader
}

// PaymentForm is the state of the recorder modal for one fee.
type PaymentForm struct {
	FeeID     string
	Method    core.PaymentMethod
	Amount    string
	MaxAmount core.Money
	BankName  string
	Reference string
	ProofURL  string
	Notes     string
}

// PaymentInput is the recorder form as submitted.
type PaymentInput struct {
	Method    string `validate:"required"`
	Amount    string `validate:"required"`
	BankName  string
	Reference string
	ProofURL  string
	Notes     string
}

// allowedProofTypes are the file extensions accepted as proof of payment.
var allowedProofTypes = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".heic": true,
}

type PaymentRecorder struct {
	api    RecorderBackend
	events EventPublisher
	now    func() time.Time
}

func NewPaymentRecorder(api RecorderBackend, events EventPublisher) *PaymentRecorder {
	return &PaymentRecorder{api: api, events: events, now: time.Now}
}

// NewForm returns the defaults of the recorder for fee: bank deposit, with the
// amount pre-filled to the outstanding balance and capped at it.
func (s *PaymentRecorder) NewForm(fee core.Fee) PaymentForm {
	balance := fee.DisplayBalance()
	if balance.Cents < 0 {
		balance = core.Money{}
	}
	return PaymentForm{
		FeeID:     fee.ID,
		Method:    core.MethodBankDeposit,
		Amount:    balance.InputValue(),
		MaxAmount: balance,
	}
}

// Methods lists the methods the identity may pick, in display order, with
// InPerson flagged as disabled for everyone but administrators.
func (s *PaymentRecorder) Methods(id core.Identity) []MethodOption {
	out := make([]MethodOption, 0, len(core.Methods))
	for _, m := range core.Methods {
		out = append(out, MethodOption{
			Method:   m,
			Disabled: m == core.MethodInPerson && !id.Role.CanRecordInPerson(),
		})
	}
	return out
}

// MethodOption is one radio button of the method picker.
type MethodOption struct {
	Method   core.PaymentMethod
	Disabled bool
}

// UploadProof stores a proof file and returns its url.
func (s *PaymentRecorder) UploadProof(ctx context.Context, filename string, r io.Reader) (string, error) {
	id, err := actor(ctx)
	if err != nil {
		return "", err
	}
	if !id.Role.CanRecordPayments() {
		return "", fmt.Errorf("%w: record payments", core.ErrForbidden)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedProofTypes[ext] {
		return "", fmt.Errorf("%w: proof must be a PDF or an image", core.ErrInvalid)
	}
	url, err := s.api.UploadProof(ctx, filename, r)
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Payment proof uploaded", "filename", filepath.Base(filename))
	return url, nil
}

// Submit validates the form and records exactly one payment against fee.
// Every check runs before the fee API is called.
func (s *PaymentRecorder) Submit(ctx context.Context, fee core.Fee, in PaymentInput) (core.Payment, error) {
	id, err := actor(ctx)
	if err != nil {
		return core.Payment{}, err
	}
	if !id.Role.CanRecordPayments() {
		return core.Payment{}, fmt.Errorf("%w: record payments", core.ErrForbidden)
	}
	in = trimPayment(in)
	if err := validateStruct(in); err != nil {
		return core.Payment{}, err
	}
	method, err := core.ParsePaymentMethod(in.Method)
	if err != nil {
		return core.Payment{}, err
	}
	amount, err := core.ParseMoney(in.Amount)
	if err != nil {
		return core.Payment{}, err
	}

	switch method {
	case core.MethodBankDeposit:
		if in.BankName == "" || in.Reference == "" {
			return core.Payment{}, core.ErrMissingBankDetails
		}
	case core.MethodProofUpload:
		if in.ProofURL == "" {
			return core.Payment{}, core.ErrMissingProof
		}
	case core.MethodInPerson:
		if !id.Role.CanRecordInPerson() {
			return core.Payment{}, core.ErrInPersonNotAllowed
		}
	}

	p := core.Payment{
		StudentID: fee.StudentID,
		SchoolID:  fee.SchoolID,
		FeeID:     fee.ID,
		Amount:    amount,
		Method:    method,
		BankName:  in.BankName,
		Reference: in.Reference,
		ProofURL:  in.ProofURL,
		Status:    core.InitialPaymentStatus(method, id.Role),
		PaidBy:    id.UserID,
		Notes:     in.Notes,
	}
	if p.SchoolID == "" {
		p.SchoolID = id.SchoolID
	}
	if method == core.MethodInPerson {
		p.ReceivedBy = id.Name
	}

	created, err := s.api.RecordPayment(ctx, p)
	if err != nil {
		return core.Payment{}, err
	}
	created = mergeCreated(p, created)
	slog.InfoContext(ctx, "Payment recorded",
		"payment_id", created.ID,
		"fee_id", fee.ID,
		"method", method,
		"status", p.Status)

	publish(ctx, s.events, core.RecordedEvent(created, id, s.now()))
	return created, nil
}

// mergeCreated fills what the API echoed back with what was sent.
func mergeCreated(sent, got core.Payment) core.Payment {
	if got.FeeID == "" {
		got.FeeID = sent.FeeID
	}
	if got.StudentID == "" {
		got.StudentID = sent.StudentID
	}
	if got.Amount.IsZero() {
		got.Amount = sent.Amount
	}
	if got.Method == "" {
		got.Method = sent.Method
	}
	if got.Status == "" {
		got.Status = sent.Status
	}
	return got
}

func trimPayment(in PaymentInput) PaymentInput {
	in.Method = strings.TrimSpace(in.Method)
	in.Amount = strings.TrimSpace(in.Amount)
	in.BankName = strings.TrimSpace(in.BankName)
	in.Reference = strings.TrimSpace(in.Reference)
	in.ProofURL = strings.TrimSpace(in.ProofURL)
	in.Notes = strings.TrimSpace(in.Notes)
	return in
}
