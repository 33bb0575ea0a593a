// Package debt allocates repayments to a person's outstanding debts,
// oldest debt first.
package debt

import (
	"moneyflow/internal/domain"

	"github.com/shopspring/decimal"
)

type Payment struct {
	Debt   domain.Debt     `json:"debt"`
	Amount decimal.Decimal `json:"amount"`
}

type Allocation struct {
	Paid        []Payment       `json:"paid"`
	Unallocated decimal.Decimal `json:"unallocated"`
}

// Allocate walks the pool in order and pays each debt up to its remaining
// balance until the repayment is used up. The pool must already be filtered
// and sorted oldest first (see BuildPool); Allocate does not reorder it.
// Whatever is left after the last debt is returned as Unallocated.
func Allocate(pool []domain.Debt, repayment decimal.Decimal) Allocation {
	left := repayment
	if left.IsNegative() {
		left = decimal.Zero
	}

	var paid []Payment
	for _, d := range pool {
		if !left.IsPositive() {
			break
		}
		if !d.Remaining.IsPositive() {
			continue
		}
		amount := decimal.Min(d.Remaining, left)
		paid = append(paid, Payment{Debt: d, Amount: amount})
		left = left.Sub(amount)
	}

	return Allocation{Paid: paid, Unallocated: left}
}

// Record converts an allocation into the metadata persisted on the repayment.
// The unallocated excess becomes a debt-less credit line.
func (a Allocation) Record(repayment decimal.Decimal, note string) domain.RepaymentAllocation {
	rec := domain.RepaymentAllocation{Amount: repayment, Debts: make([]domain.AllocatedDebt, 0, len(a.Paid)+1)}
	for _, p := range a.Paid {
		id := p.Debt.ID
		rec.Debts = append(rec.Debts, domain.AllocatedDebt{
			ID:     &id,
			Amount: p.Amount,
			Tag:    p.Debt.Tag,
			Note:   p.Debt.Note,
		})
	}
	if a.Unallocated.IsPositive() {
		rec.Debts = append(rec.Debts, domain.AllocatedDebt{Amount: a.Unallocated, Note: note})
	}
	return rec
}

// Apply returns the pool with the allocation's payments deducted.
func Apply(pool []domain.Debt, a Allocation) []domain.Debt {
	out := make([]domain.Debt, len(pool))
	copy(out, pool)
	for _, p := range a.Paid {
		for i := range out {
			if out[i].ID == p.Debt.ID {
				out[i].Remaining = clamp(out[i].Remaining.Sub(p.Amount), out[i].Amount)
				break
			}
		}
	}
	return out
}

func clamp(v, max decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(max) {
		return max
	}
	return v
}
