package debt

import (
	"sort"
	"time"

	"moneyflow/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BuildPool keeps the unsettled debts and orders them oldest first.
// Debts with the same timestamp keep their input order.
func BuildPool(debts []domain.Debt) []domain.Debt {
	pool := make([]domain.Debt, 0, len(debts))
	for _, d := range debts {
		if d.Remaining.GreaterThan(domain.SettledThreshold) {
			pool = append(pool, d)
		}
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].OccurredAt.Before(pool[j].OccurredAt)
	})
	return pool
}

// OpenedBy keeps the debts that already existed at t, preserving order.
// A repayment can only settle debts opened no later than itself.
func OpenedBy(pool []domain.Debt, t time.Time) []domain.Debt {
	var out []domain.Debt
	for _, d := range pool {
		if !d.OccurredAt.After(t) {
			out = append(out, d)
		}
	}
	return out
}

// ReconcilePool rebuilds remaining balances from the allocations already
// recorded on repayments: remaining = amount - sum(recorded allocations),
// clamped to [0, amount]. Allocations pointing to unknown debts are ignored.
// Running it twice over the same history yields the same pool.
func ReconcilePool(debts []domain.Debt, prior []domain.RepaymentAllocation) []domain.Debt {
	paid := make(map[uuid.UUID]decimal.Decimal, len(debts))
	for _, a := range prior {
		for _, d := range a.Debts {
			if d.ID == nil {
				continue
			}
			paid[*d.ID] = paid[*d.ID].Add(d.Amount)
		}
	}

	out := make([]domain.Debt, len(debts))
	for i, d := range debts {
		d.Remaining = clamp(d.Amount.Sub(paid[d.ID]), d.Amount)
		out[i] = d
	}
	return out
}

// Outstanding is the total remaining balance of the pool.
func Outstanding(pool []domain.Debt) decimal.Decimal {
	total := decimal.Zero
	for _, d := range pool {
		total = total.Add(d.Remaining)
	}
	return total
}
