package core

import "time"

// CategorySummary aggregates the fees of one category for display.
type CategorySummary struct {
	Category    FeeCategory
	Count       int
	PaidCount   int
	UnpaidCount int
	Total       Money
	Paid        Money
	Balance     Money
}

// SummarizeByCategory projects fees onto the fixed categories, in display order.
// Every category is present even when it has no fees. A fee counts as paid
// only when its status is paid; everything else is unpaid.
func SummarizeByCategory(fees []Fee) []CategorySummary {
	out := make([]CategorySummary, len(Categories))
	index := make(map[FeeCategory]int, len(Categories))
	for i, c := range Categories {
		out[i].Category = c
		index[c] = i
	}
	for _, f := range fees {
		s := &out[index[f.Category.Normalized()]]
		s.Count++
		if f.Status == FeePaid {
			s.PaidCount++
		} else {
			s.UnpaidCount++
		}
		s.Total = s.Total.Add(f.Amount)
		s.Paid = s.Paid.Add(f.Paid())
	}
	for i := range out {
		out[i].Balance = out[i].Total.Sub(out[i].Paid)
	}
	return out
}

// DeriveFeeStatus is the fee API's status rule, used by the bundled standalone backends.
func DeriveFeeStatus(f Fee, verifiedPaid Money, today time.Time) FeeStatus {
	if f.Status == FeeWaived {
		return FeeWaived
	}
	switch {
	case verifiedPaid.Cents >= f.Amount.Cents:
		return FeePaid
	case !f.DueDate.IsZero() && f.DueDate.Before(truncateDay(today)):
		return FeeOverdue
	case verifiedPaid.Cents > 0:
		return FeePartial
	default:
		return FeePending
	}
}

// ApplyPayments fills PaidAmount, Balance and Status from the verified total.
func ApplyPayments(f Fee, verifiedPaid Money, today time.Time) Fee {
	paid := verifiedPaid
	balance := f.Amount.Sub(paid)
	if balance.Cents < 0 {
		balance = Money{}
	}
	f.PaidAmount = &paid
	f.Balance = &balance
	f.Status = DeriveFeeStatus(f, verifiedPaid, today)
	return f
}

// ComputeStats aggregates fees that already carry derived amounts.
func ComputeStats(fees []Fee) FeeStats {
	var st FeeStats
	for _, f := range fees {
		st.TotalFees = st.TotalFees.Add(f.Amount)
		st.PaidFees = st.PaidFees.Add(f.Paid())
		if f.Status == FeeWaived {
			continue
		}
		st.OutstandingFees = st.OutstandingFees.Add(f.DisplayBalance())
		if f.Status == FeeOverdue {
			st.OverdueFees = st.OverdueFees.Add(f.DisplayBalance())
		}
	}
	return st
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
