package core

import (
	"encoding/json"
	"testing"
	"time"
)

func money(cents int64) *Money { return &Money{Cents: cents} }

func TestDisplayBalance(t *testing.T) {
	cases := []struct {
		name string
		fee  Fee
		want int64
	}{
		{"balance from payload", Fee{Amount: Money{Cents: 15000}, PaidAmount: money(5000), Balance: money(7000)}, 7000},
		{"derived when balance absent", Fee{Amount: Money{Cents: 15000}, PaidAmount: money(5000)}, 10000},
		{"nothing paid", Fee{Amount: Money{Cents: 15000}}, 15000},
		{"zero paid", Fee{Amount: Money{Cents: 15000}, PaidAmount: money(0)}, 15000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fee.DisplayBalance().Cents; got != tc.want {
				t.Fatalf("DisplayBalance = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestUnpaidFeeDisplay(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"without status", `{"amount":150,"paidAmount":0}`},
		{"with status", `{"id":"f1","amount":150,"paidAmount":0,"status":"pending","dueDate":"2025-03-01"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Fee
			if err := json.Unmarshal([]byte(tt.payload), &f); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if f.PaymentLabel() != "Not paid" {
				t.Errorf("PaymentLabel = %q, want Not paid", f.PaymentLabel())
			}
			if f.Status.Label() != "Pending" {
				t.Errorf("status label = %q, want Pending", f.Status.Label())
			}
			if f.DisplayBalance().Cents != 15000 {
				t.Errorf("balance = %d, want 15000", f.DisplayBalance().Cents)
			}
		})
	}
}

func TestPaymentLabel(t *testing.T) {
	if got := (Fee{Amount: Money{Cents: 100}, PaidAmount: money(40)}).PaymentLabel(); got != "Partially paid" {
		t.Fatalf("got %q", got)
	}
	if got := (Fee{Amount: Money{Cents: 100}, PaidAmount: money(100)}).PaymentLabel(); got != "Fully paid" {
		t.Fatalf("got %q", got)
	}
}

func TestDateJSON(t *testing.T) {
	for _, in := range []string{`"2025-01-31"`, `"2025-01-31T10:00:00Z"`, `"2025-01-31T10:00:00.123+02:00"`} {
		var d Date
		if err := json.Unmarshal([]byte(in), &d); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		if d.String() != "2025-01-31" {
			t.Fatalf("unmarshal %s: got %s", in, d.String())
		}
	}
	var d Date
	if err := json.Unmarshal([]byte(`null`), &d); err != nil || !d.IsZero() {
		t.Fatalf("null date: %v %v", d, err)
	}
	if err := json.Unmarshal([]byte(`"31/01/2025"`), &d); err == nil {
		t.Fatalf("expected error for unsupported layout")
	}
}

func TestParseDate(t *testing.T) {
	if _, err := ParseDate(""); err != ErrMissingDueDate {
		t.Fatalf("empty: got %v", err)
	}
	if _, err := ParseDate("tomorrow"); err != ErrInvalidDueDate {
		t.Fatalf("garbage: got %v", err)
	}
	d, err := ParseDate("2025-06-30")
	if err != nil || d.Year() != 2025 || d.Month() != time.June || d.Day() != 30 {
		t.Fatalf("valid: got %v %v", d, err)
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("")
	if err != nil || c != CategoryTuition {
		t.Fatalf("empty category: %q %v", c, err)
	}
	c, err = ParseCategory(" Sports ")
	if err != nil || c != CategorySports {
		t.Fatalf("sports: %q %v", c, err)
	}
	if _, err := ParseCategory("canteen"); !IsValidation(err) {
		t.Fatalf("canteen: expected validation error, got %v", err)
	}
	if FeeCategory("canteen").Normalized() != CategoryOther {
		t.Fatalf("unknown category should normalize to other")
	}
}

func TestPaymentStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to PaymentStatus
		ok       bool
	}{
		{PaymentPendingVerification, PaymentVerified, true},
		{PaymentPendingVerification, PaymentRejected, true},
		{PaymentPendingVerification, PaymentPendingVerification, false},
		{PaymentVerified, PaymentRejected, false},
		{PaymentRejected, PaymentVerified, false},
		{PaymentVerified, PaymentPendingVerification, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}
