// Package feeapi declares the ports through which feedesk reaches the fee API.
//
// Tenancy and the acting user are never passed explicitly: adapters take them
// from the identity carried by the context (see internal/identity).
package feeapi

import (
	"context"
	"io"

	"feedesk/internal/core"
)

// Ports for outbound adapters.
type (
	FeeReader interface {
		ListFees(ctx context.Context) ([]core.Fee, error)
		OverdueFees(ctx context.Context) ([]core.Fee, error)
		FeeStats(ctx context.Context) (core.FeeStats, error)
	}

	FeeWriter interface {
		CreateFee(ctx context.Context, d core.FeeDraft) (core.Fee, error)
		UpdateFee(ctx context.Context, id string, u core.FeeUpdate) (core.Fee, error)
	}

	// PaymentReader lists payments. An empty status lists every payment.
	PaymentReader interface {
		ListPayments(ctx context.Context, status core.PaymentStatus) ([]core.Payment, error)
		RecentPayments(ctx context.Context, limit int) ([]core.Payment, error)
	}

	PaymentWriter interface {
		RecordPayment(ctx context.Context, p core.Payment) (core.Payment, error)
	}

	PaymentVerifier interface {
		VerifyPayment(ctx context.Context, id string) error
		RejectPayment(ctx context.Context, id string, reason string) error
	}

	StudentLister interface {
		ListStudents(ctx context.Context) ([]core.Student, error)
	}

	// ProofUploader stores a proof-of-payment file and returns where it can be fetched.
	ProofUploader interface {
		UploadProof(ctx context.Context, filename string, r io.Reader) (url string, err error)
	}

	// Backend is everything the screens need from the fee API.
	Backend interface {
		FeeReader
		FeeWriter
		PaymentReader
		PaymentWriter
		PaymentVerifier
		StudentLister
		ProofUploader
	}
)

// DefaultRecentPayments is the size of the recent payments widget.
const DefaultRecentPayments = 5

// ProofUploadType tags uploads made by the payment recorder.
const ProofUploadType = "payment-proof"
