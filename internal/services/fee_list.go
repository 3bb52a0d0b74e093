package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"feedesk/internal/core"
	"feedesk/internal/feeapi"
)

// FeeListBackend is what the fee list needs from the fee API.
type FeeListBackend interface {
	feeapi.FeeReader
	feeapi.FeeWriter
	feeapi.PaymentReader
	feeapi.StudentLister
}

// FeeListPage is everything the fee list screen renders.
// Insight fields stay empty when the identity may not see them or their fetch failed.
type FeeListPage struct {
	Identity     core.Identity
	Fees         []core.Fee
	Breakdown    []core.CategorySummary
	Insights     bool
	Stats        *core.FeeStats
	Overdue      []core.Fee
	Recent       []core.Payment
	Students     []core.Student
	PendingCount int
}

// CreateFeeInput is the create-fee form as submitted.
type CreateFeeInput struct {
	StudentID string `validate:"required"`
	Amount    string `validate:"required"`
	Term      string `validate:"required"`
	DueDate   string `validate:"required"`
	Category  string
	Year      string
}

// UpdateFeeInput is the edit-fee form as submitted. Empty fields keep their stored value.
type UpdateFeeInput struct {
	Term    string `validate:"required"`
	Amount  string
	Year    string
	DueDate string
}

type FeeList struct {
	api FeeListBackend
}

func NewFeeList(api FeeListBackend) *FeeList {
	return &FeeList{api: api}
}

// Load fetches the fee roster and, for administrators, the insight widgets
// concurrently. Only a failure of the roster itself is returned; insight
// failures are logged and leave their widget empty.
func (s *FeeList) Load(ctx context.Context) (FeeListPage, error) {
	id, err := actor(ctx)
	if err != nil {
		return FeeListPage{}, err
	}
	page := FeeListPage{Identity: id, Insights: id.Role.CanViewFeeInsights()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fees, err := s.api.ListFees(gctx)
		if err != nil {
			return fmt.Errorf("load fees: %w", err)
		}
		page.Fees = fees
		return nil
	})
	if page.Insights {
		g.Go(func() error {
			if st, err := s.api.FeeStats(gctx); err != nil {
				logWidgetError(gctx, "stats", err)
			} else {
				page.Stats = &st
			}
			return nil
		})
		g.Go(func() error {
			if fees, err := s.api.OverdueFees(gctx); err != nil {
				logWidgetError(gctx, "overdue", err)
			} else {
				page.Overdue = fees
			}
			return nil
		})
		g.Go(func() error {
			if ps, err := s.api.RecentPayments(gctx, feeapi.DefaultRecentPayments); err != nil {
				logWidgetError(gctx, "recent_payments", err)
			} else {
				page.Recent = ps
			}
			return nil
		})
		g.Go(func() error {
			if students, err := s.api.ListStudents(gctx); err != nil {
				logWidgetError(gctx, "students", err)
			} else {
				page.Students = students
			}
			return nil
		})
		g.Go(func() error {
			if ps, err := s.api.ListPayments(gctx, core.PaymentPendingVerification); err != nil {
				logWidgetError(gctx, "pending_count", err)
			} else {
				page.PendingCount = len(ps)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return FeeListPage{Identity: id}, err
	}

	page.Breakdown = core.SummarizeByCategory(page.Fees)
	return page, nil
}

func logWidgetError(ctx context.Context, widget string, err error) {
	if ctx.Err() != nil {
		return
	}
	slog.WarnContext(ctx, "Fee list widget failed to load", "widget", widget, "error", err)
}

// FindFee looks a fee up in the caller's roster. The fee API has no single-fee read.
func (s *FeeList) FindFee(ctx context.Context, id string) (core.Fee, error) {
	fees, err := s.api.ListFees(ctx)
	if err != nil {
		return core.Fee{}, fmt.Errorf("load fees: %w", err)
	}
	for _, f := range fees {
		if f.ID == id {
			return f, nil
		}
	}
	return core.Fee{}, fmt.Errorf("fee %s: %w", id, core.ErrNotFound)
}

// CreateFee validates the form and creates a fee in the administrator's school.
func (s *FeeList) CreateFee(ctx context.Context, in CreateFeeInput) (core.Fee, error) {
	id, err := actor(ctx)
	if err != nil {
		return core.Fee{}, err
	}
	if !id.Role.CanManageFees() {
		return core.Fee{}, fmt.Errorf("%w: manage fees", core.ErrForbidden)
	}
	in = trimCreate(in)
	if err := validateStruct(in); err != nil {
		return core.Fee{}, err
	}
	amount, err := core.ParseMoney(in.Amount)
	if err != nil {
		return core.Fee{}, err
	}
	due, err := core.ParseDate(in.DueDate)
	if err != nil {
		return core.Fee{}, err
	}
	category, err := core.ParseCategory(in.Category)
	if err != nil {
		return core.Fee{}, err
	}
	year, err := parseYear(in.Year, due.Year())
	if err != nil {
		return core.Fee{}, err
	}

	fee, err := s.api.CreateFee(ctx, core.FeeDraft{
		StudentID: in.StudentID,
		SchoolID:  id.SchoolID,
		Amount:    amount,
		Category:  category,
		Term:      in.Term,
		Year:      year,
		DueDate:   due,
	})
	if err != nil {
		return core.Fee{}, err
	}
	slog.InfoContext(ctx, "Fee created", "fee_id", fee.ID, "student_id", in.StudentID, "amount", amount.String())
	return fee, nil
}

// UpdateFee validates the edit form and sends the fields that were filled in.
func (s *FeeList) UpdateFee(ctx context.Context, feeID string, in UpdateFeeInput) (core.Fee, error) {
	id, err := actor(ctx)
	if err != nil {
		return core.Fee{}, err
	}
	if !id.Role.CanManageFees() {
		return core.Fee{}, fmt.Errorf("%w: manage fees", core.ErrForbidden)
	}
	in.Term = strings.TrimSpace(in.Term)
	if err := validateStruct(in); err != nil {
		return core.Fee{}, err
	}

	u := core.FeeUpdate{Term: in.Term}
	if strings.TrimSpace(in.Amount) != "" {
		amount, err := core.ParseMoney(in.Amount)
		if err != nil {
			return core.Fee{}, err
		}
		u.Amount = &amount
	}
	if strings.TrimSpace(in.DueDate) != "" {
		due, err := core.ParseDate(in.DueDate)
		if err != nil {
			return core.Fee{}, err
		}
		u.DueDate = &due
	}
	if u.Year, err = parseYear(in.Year, 0); err != nil {
		return core.Fee{}, err
	}

	fee, err := s.api.UpdateFee(ctx, feeID, u)
	if err != nil {
		return core.Fee{}, err
	}
	slog.InfoContext(ctx, "Fee updated", "fee_id", feeID)
	return fee, nil
}

func trimCreate(in CreateFeeInput) CreateFeeInput {
	in.StudentID = strings.TrimSpace(in.StudentID)
	in.Amount = strings.TrimSpace(in.Amount)
	in.Term = strings.TrimSpace(in.Term)
	in.DueDate = strings.TrimSpace(in.DueDate)
	in.Category = strings.TrimSpace(in.Category)
	in.Year = strings.TrimSpace(in.Year)
	return in
}

// parseYear returns def for empty input.
func parseYear(s string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < 1900 || y > 9999 {
		return 0, core.ErrInvalidYear
	}
	return y, nil
}
