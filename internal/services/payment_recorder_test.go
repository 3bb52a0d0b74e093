package services

import (
	"errors"
	"strings"
	"testing"

	"feedesk/internal/core"
)

func TestNewFormDefaults(t *testing.T) {
	s := NewPaymentRecorder(&fakeAPI{}, nil)
	cases := []struct {
		name string
		fee  core.Fee
		want string
	}{
		{"balance present", core.Fee{ID: "f", Amount: core.Money{Cents: 15000}, Balance: moneyPtr(4000)}, "40.00"},
		{"balance derived", core.Fee{ID: "f", Amount: core.Money{Cents: 15000}, PaidAmount: moneyPtr(5000)}, "100.00"},
		{"nothing paid", core.Fee{ID: "f", Amount: core.Money{Cents: 15000}}, "150.00"},
		{"overpaid", core.Fee{ID: "f", Amount: core.Money{Cents: 100}, PaidAmount: moneyPtr(500)}, "0.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := s.NewForm(tc.fee)
			if form.Amount != tc.want || form.MaxAmount.InputValue() != tc.want {
				t.Fatalf("amount = %q max = %q, want %q", form.Amount, form.MaxAmount.InputValue(), tc.want)
			}
			if form.Method != core.MethodBankDeposit || form.FeeID != "f" {
				t.Fatalf("unexpected defaults: %+v", form)
			}
		})
	}
}

func TestMethodsDisableInPersonForNonAdmins(t *testing.T) {
	s := NewPaymentRecorder(&fakeAPI{}, nil)
	for _, role := range []core.Role{core.RoleParent, core.RoleSchoolAdmin} {
		opts := s.Methods(core.Identity{Role: role})
		if len(opts) != 3 || opts[2].Method != core.MethodInPerson {
			t.Fatalf("unexpected options: %+v", opts)
		}
		if opts[2].Disabled != (role != core.RoleSchoolAdmin) {
			t.Fatalf("role %s: in-person disabled = %v", role, opts[2].Disabled)
		}
	}
}

func TestSubmitValidationSkipsNetwork(t *testing.T) {
	fee := core.Fee{ID: "f1", StudentID: "s1", SchoolID: "sch", Amount: core.Money{Cents: 15000}}
	cases := []struct {
		name string
		role core.Role
		in   PaymentInput
		want error
	}{
		{"proof upload without url", core.RoleParent, PaymentInput{Method: "ProofUpload", Amount: "150"}, core.ErrMissingProof},
		{"in person by parent", core.RoleParent, PaymentInput{Method: "InPerson", Amount: "150"}, core.ErrInPersonNotAllowed},
		{"bank deposit without reference", core.RoleParent, PaymentInput{Method: "BankDeposit", Amount: "150", BankName: "KCB"}, core.ErrMissingBankDetails},
		{"negative amount", core.RoleParent, PaymentInput{Method: "BankDeposit", Amount: "-5", BankName: "KCB", Reference: "R"}, core.ErrInvalidAmount},
		{"zero amount", core.RoleSchoolAdmin, PaymentInput{Method: "InPerson", Amount: "0.00"}, core.ErrInvalidAmount},
		{"missing amount", core.RoleParent, PaymentInput{Method: "BankDeposit", BankName: "KCB", Reference: "R"}, core.ErrMissingAmount},
		{"unknown method", core.RoleParent, PaymentInput{Method: "Cheque", Amount: "1"}, core.ErrInvalidMethod},
		{"bursar cannot record", core.RoleBursar, PaymentInput{Method: "BankDeposit", Amount: "1", BankName: "KCB", Reference: "R"}, core.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeAPI{}
			events := &fakePublisher{}
			_, err := NewPaymentRecorder(api, events).Submit(ctxAs(tc.role), fee, tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if api.callCount() != 0 || len(events.events) != 0 {
				t.Fatalf("rejected submission reached the API: %v", api.calls)
			}
		})
	}
}

func TestSubmitStatusByMethodAndRole(t *testing.T) {
	fee := core.Fee{ID: "f1", StudentID: "s1", SchoolID: "sch", Amount: core.Money{Cents: 15000}}
	cases := []struct {
		name string
		role core.Role
		in   PaymentInput
		want core.PaymentStatus
	}{
		{"admin in person", core.RoleSchoolAdmin, PaymentInput{Method: "InPerson", Amount: "150"}, core.PaymentVerified},
		{"admin bank deposit", core.RoleSchoolAdmin, PaymentInput{Method: "BankDeposit", Amount: "150", BankName: "KCB", Reference: "R"}, core.PaymentPendingVerification},
		{"parent proof upload", core.RoleParent, PaymentInput{Method: "ProofUpload", Amount: "150", ProofURL: "https://x/p.png"}, core.PaymentPendingVerification},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeAPI{}
			events := &fakePublisher{}
			p, err := NewPaymentRecorder(api, events).Submit(ctxAs(tc.role), fee, tc.in)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			sent := api.lastPay
			if sent.Status != tc.want || p.Status != tc.want {
				t.Fatalf("status sent %s returned %s, want %s", sent.Status, p.Status, tc.want)
			}
			if sent.FeeID != "f1" || sent.StudentID != "s1" || sent.SchoolID != "sch" || sent.Amount.Cents != 15000 || sent.PaidBy != "u-"+string(tc.role) {
				t.Fatalf("unexpected payment sent: %+v", sent)
			}
			if len(events.events) != 1 || events.events[0].Type != core.EventPaymentRecorded || events.events[0].PaymentID != "pay-1" {
				t.Fatalf("expected one recorded event, got %+v", events.events)
			}
		})
	}
}

func TestSubmitSurvivesPublisherFailure(t *testing.T) {
	api := &fakeAPI{}
	events := &fakePublisher{err: errors.New("broker down")}
	_, err := NewPaymentRecorder(api, events).Submit(ctxAs(core.RoleSchoolAdmin), core.Fee{ID: "f1"}, PaymentInput{Method: "InPerson", Amount: "1"})
	if err != nil {
		t.Fatalf("publishing is best effort, got %v", err)
	}
}

func TestSubmitReturnsAPIError(t *testing.T) {
	boom := errors.New("fee api unavailable")
	api := &fakeAPI{failWrite: boom}
	events := &fakePublisher{}
	_, err := NewPaymentRecorder(api, events).Submit(ctxAs(core.RoleParent), core.Fee{ID: "f1"}, PaymentInput{Method: "BankDeposit", Amount: "1", BankName: "B", Reference: "R"})
	if !errors.Is(err, boom) || len(events.events) != 0 {
		t.Fatalf("expected API error and no event, got %v / %d events", err, len(events.events))
	}
}

func TestUploadProof(t *testing.T) {
	api := &fakeAPI{uploadURL: "https://files/p.png"}
	s := NewPaymentRecorder(api, nil)

	url, err := s.UploadProof(ctxAs(core.RoleParent), "receipt.PNG", strings.NewReader("img"))
	if err != nil || url != "https://files/p.png" {
		t.Fatalf("upload: %q %v", url, err)
	}
	if _, err := s.UploadProof(ctxAs(core.RoleParent), "script.exe", strings.NewReader("x")); !core.IsValidation(err) {
		t.Fatalf("expected validation error for executable, got %v", err)
	}
	if _, err := s.UploadProof(ctxAs(core.RoleTeacher), "a.pdf", strings.NewReader("x")); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for teacher, got %v", err)
	}
	if api.callCount() != 1 {
		t.Fatalf("expected a single upload call, got %v", api.calls)
	}
}
