package debt

import (
	"sort"

	"moneyflow/internal/domain"

	"github.com/google/uuid"
)

// ReplayResult is the outcome of replaying a person's repayment history.
type ReplayResult struct {
	// Pool is the debt list with remaining balances after the whole history.
	Pool []domain.Debt
	// Computed holds allocations for repayments that had none recorded.
	Computed map[uuid.UUID]domain.RepaymentAllocation
}

// Replay reconstructs allocations for a repayment history. Repayments that
// already carry a bulk allocation are deducted from the simulated pool as
// recorded; the others are allocated FIFO against the debts that existed at
// the time of the repayment. Replaying a history in which every repayment is
// recorded leaves the pool identical to ReconcilePool over the same records.
func Replay(debts []domain.Debt, repayments []domain.Transaction) ReplayResult {
	pool := make([]domain.Debt, len(debts))
	for i, d := range debts {
		d.Remaining = d.Amount
		pool[i] = d
	}

	ordered := make([]domain.Transaction, len(repayments))
	copy(ordered, repayments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OccurredAt.Before(ordered[j].OccurredAt)
	})

	res := ReplayResult{Computed: make(map[uuid.UUID]domain.RepaymentAllocation)}
	for _, r := range ordered {
		if r.Metadata != nil && r.Metadata.BulkAllocation != nil {
			pool = deductRecorded(pool, *r.Metadata.BulkAllocation)
			continue
		}

		amount := r.Amount.Abs()
		alloc := Allocate(BuildPool(OpenedBy(pool, r.OccurredAt)), amount)
		res.Computed[r.ID] = alloc.Record(amount, r.Note)
		pool = Apply(pool, alloc)
	}

	res.Pool = pool
	return res
}

func deductRecorded(pool []domain.Debt, rec domain.RepaymentAllocation) []domain.Debt {
	out := make([]domain.Debt, len(pool))
	copy(out, pool)
	for _, a := range rec.Debts {
		if a.ID == nil {
			continue
		}
		for i := range out {
			if out[i].ID == *a.ID {
				out[i].Remaining = clamp(out[i].Remaining.Sub(a.Amount), out[i].Amount)
				break
			}
		}
	}
	return out
}
