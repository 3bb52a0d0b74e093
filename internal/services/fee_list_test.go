package services

import (
	"context"
	"errors"
	"testing"

	"feedesk/internal/core"
)

func TestFeeListLoadAdmin(t *testing.T) {
	api := &fakeAPI{
		fees: []core.Fee{
			{ID: "f1", Amount: core.Money{Cents: 10000}, Category: core.CategoryTuition, Status: core.FeePaid, PaidAmount: moneyPtr(10000)},
			{ID: "f2", Amount: core.Money{Cents: 5000}, Status: core.FeePending},
			{ID: "f3", Amount: core.Money{Cents: 2000}, Category: "uniform", Status: core.FeeOverdue},
		},
		stats:    core.FeeStats{TotalFees: core.Money{Cents: 17000}},
		overdue:  []core.Fee{{ID: "f3"}},
		students: []core.Student{{ID: "s1"}},
		payments: []core.Payment{
			{ID: "p1", Status: core.PaymentPendingVerification},
			{ID: "p2", Status: core.PaymentVerified},
			{ID: "p3", Status: core.PaymentPendingVerification},
		},
	}
	page, err := NewFeeList(api).Load(ctxAs(core.RoleSchoolAdmin))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !page.Insights || page.Stats == nil || page.Stats.TotalFees.Cents != 17000 {
		t.Fatalf("stats not loaded: %+v", page.Stats)
	}
	if len(page.Overdue) != 1 || len(page.Students) != 1 || len(page.Recent) != 3 || page.PendingCount != 2 {
		t.Fatalf("unexpected widgets: overdue=%d students=%d recent=%d pending=%d",
			len(page.Overdue), len(page.Students), len(page.Recent), page.PendingCount)
	}

	tuition, other := page.Breakdown[0], page.Breakdown[4]
	if tuition.Count != 2 || tuition.PaidCount != 1 || tuition.UnpaidCount != 1 || tuition.Total.Cents != 15000 {
		t.Fatalf("unexpected tuition summary: %+v", tuition)
	}
	if other.Count != 1 || other.Total.Cents != 2000 {
		t.Fatalf("unknown category must count as other: %+v", other)
	}
}

func TestFeeListLoadNonAdminSkipsInsights(t *testing.T) {
	api := &fakeAPI{fees: []core.Fee{{ID: "f1", Amount: core.Money{Cents: 100}}}}
	page, err := NewFeeList(api).Load(ctxAs(core.RoleParent))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if page.Insights || page.Stats != nil {
		t.Fatalf("parent must not see insights")
	}
	if api.callCount() != 1 {
		t.Fatalf("expected only the fee list to be fetched, got %v", api.calls)
	}
}

func TestFeeListLoadErrors(t *testing.T) {
	boom := errors.New("boom")

	api := &fakeAPI{failFees: boom}
	if _, err := NewFeeList(api).Load(ctxAs(core.RoleSchoolAdmin)); !errors.Is(err, boom) {
		t.Fatalf("primary failure must be returned, got %v", err)
	}

	api = &fakeAPI{fees: []core.Fee{{ID: "f1"}}, failStats: boom}
	page, err := NewFeeList(api).Load(ctxAs(core.RoleSchoolAdmin))
	if err != nil {
		t.Fatalf("secondary failure must not fail the page: %v", err)
	}
	if page.Stats != nil || len(page.Fees) != 1 {
		t.Fatalf("stats widget should be empty, fees present: %+v", page)
	}

	if _, err := NewFeeList(api).Load(context.Background()); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("expected ErrForbidden without identity, got %v", err)
	}
}

func TestCreateFeeValidationSkipsNetwork(t *testing.T) {
	valid := CreateFeeInput{StudentID: "s1", Amount: "150", Term: "Term 1", DueDate: "2025-03-01"}
	cases := []struct {
		name string
		edit func(*CreateFeeInput)
		want error
	}{
		{"missing student", func(in *CreateFeeInput) { in.StudentID = "" }, core.ErrMissingStudent},
		{"missing amount", func(in *CreateFeeInput) { in.Amount = "  " }, core.ErrMissingAmount},
		{"missing term", func(in *CreateFeeInput) { in.Term = "" }, core.ErrMissingTerm},
		{"missing due date", func(in *CreateFeeInput) { in.DueDate = "" }, core.ErrMissingDueDate},
		{"zero amount", func(in *CreateFeeInput) { in.Amount = "0" }, core.ErrInvalidAmount},
		{"bad date", func(in *CreateFeeInput) { in.DueDate = "01/03/2025" }, core.ErrInvalidDueDate},
		{"bad category", func(in *CreateFeeInput) { in.Category = "uniform" }, core.ErrInvalidCategory},
		{"bad year", func(in *CreateFeeInput) { in.Year = "20x5" }, core.ErrInvalidYear},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeAPI{}
			in := valid
			tc.edit(&in)
			_, err := NewFeeList(api).CreateFee(ctxAs(core.RoleSchoolAdmin), in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !core.IsValidation(err) {
				t.Fatalf("expected a validation error, got %v", err)
			}
			if api.callCount() != 0 {
				t.Fatalf("validation failure issued calls: %v", api.calls)
			}
		})
	}
}

func TestCreateFeeSubmitsDraft(t *testing.T) {
	api := &fakeAPI{}
	_, err := NewFeeList(api).CreateFee(ctxAs(core.RoleSchoolAdmin), CreateFeeInput{
		StudentID: " s1 ", Amount: "1,250.5", Term: "Term 1", DueDate: "2025-03-01",
	})
	if err == nil {
		t.Fatal("thousands separators are not accepted")
	}

	fee, err := NewFeeList(api).CreateFee(ctxAs(core.RoleSchoolAdmin), CreateFeeInput{
		StudentID: " s1 ", Amount: "1250.5", Term: "Term 1", DueDate: "2025-03-01",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	d := api.lastDraft
	if fee.ID != "new" || d.StudentID != "s1" || d.SchoolID != "sch" || d.Amount.Cents != 125050 ||
		d.Category != core.CategoryTuition || d.Year != 2025 || d.DueDate.String() != "2025-03-01" {
		t.Fatalf("unexpected draft: %+v", d)
	}
}

func TestCreateFeeRequiresAdmin(t *testing.T) {
	api := &fakeAPI{}
	_, err := NewFeeList(api).CreateFee(ctxAs(core.RoleBursar), CreateFeeInput{StudentID: "s1", Amount: "1", Term: "T", DueDate: "2025-01-01"})
	if !errors.Is(err, core.ErrForbidden) || api.callCount() != 0 {
		t.Fatalf("expected ErrForbidden without calls, got %v (%v)", err, api.calls)
	}
}

func TestUpdateFee(t *testing.T) {
	api := &fakeAPI{}
	s := NewFeeList(api)
	if _, err := s.UpdateFee(ctxAs(core.RoleSchoolAdmin), "f1", UpdateFeeInput{Term: "  ", Amount: "10"}); !errors.Is(err, core.ErrMissingTerm) {
		t.Fatalf("expected ErrMissingTerm, got %v", err)
	}
	if api.callCount() != 0 {
		t.Fatalf("validation failure issued calls")
	}

	if _, err := s.UpdateFee(ctxAs(core.RoleSchoolAdmin), "f1", UpdateFeeInput{Term: "Term 2", Amount: "99.99", Year: "2026"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	u := api.lastUpdate
	if u.Term != "Term 2" || u.Amount == nil || u.Amount.Cents != 9999 || u.Year != 2026 || u.DueDate != nil {
		t.Fatalf("unexpected update: %+v", u)
	}
}

func TestFindFee(t *testing.T) {
	api := &fakeAPI{fees: []core.Fee{{ID: "a"}, {ID: "b"}}}
	s := NewFeeList(api)
	if f, err := s.FindFee(ctxAs(core.RoleParent), "b"); err != nil || f.ID != "b" {
		t.Fatalf("find: %+v %v", f, err)
	}
	if _, err := s.FindFee(ctxAs(core.RoleParent), "zz"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
