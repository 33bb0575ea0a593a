package cashback

import (
	"errors"
	"fmt"
	"time"

	"moneyflow/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownMode  = errors.New("unknown cashback mode")
	ErrMissingShare = errors.New("cashback share is required for this mode")
	ErrNoCashback   = errors.New("transaction has no cashback mode")
)

// now is replaced in tests.
var now = time.Now

// ValidateShares checks that the share fields required by the mode are present and non-negative.
func ValidateShares(txn domain.Transaction) error {
	if txn.CashbackShareFixed != nil && txn.CashbackShareFixed.IsNegative() {
		return fmt.Errorf("cashback_share_fixed: %w", errNegative)
	}
	if txn.CashbackSharePercent != nil && txn.CashbackSharePercent.IsNegative() {
		return fmt.Errorf("cashback_share_percent: %w", errNegative)
	}

	switch txn.CashbackMode {
	case domain.CashbackNone, domain.CashbackRealPercent, domain.CashbackNoneBack:
		return nil
	case domain.CashbackRealFixed:
		if txn.CashbackShareFixed == nil {
			return fmt.Errorf("%s: %w", txn.CashbackMode, ErrMissingShare)
		}
		return nil
	case domain.CashbackVoluntary:
		if txn.CashbackShareFixed == nil && txn.CashbackSharePercent == nil {
			return fmt.Errorf("%s: %w", txn.CashbackMode, ErrMissingShare)
		}
		return nil
	default:
		return fmt.Errorf("%q: %w", txn.CashbackMode, ErrUnknownMode)
	}
}

var errNegative = errors.New("must not be negative")

// BuildEntry computes the cashback entry of a transaction on the given account.
// cycleSpend is the spend accumulated in the transaction's cycle, the
// transaction included.
func BuildEntry(txn domain.Transaction, acct domain.Account, cycleSpend decimal.Decimal) (domain.CashbackEntry, error) {
	if txn.CashbackMode == domain.CashbackNone {
		return domain.CashbackEntry{}, ErrNoCashback
	}
	if err := ValidateShares(txn); err != nil {
		return domain.CashbackEntry{}, err
	}

	cfg, err := ParseConfig(acct.CashbackConfig)
	if err != nil {
		return domain.CashbackEntry{}, err
	}
	window, err := ResolveTransactionCycle(cfg, txn.OccurredAt, txn.Tag)
	if err != nil {
		return domain.CashbackEntry{}, err
	}

	entry := domain.CashbackEntry{
		TransactionID: txn.ID,
		AccountID:     acct.ID,
		CycleTag:      window.Tag(),
		ComputedAt:    now().UTC(),
	}

	switch txn.CashbackMode {
	case domain.CashbackRealFixed:
		entry.Mode = domain.EntryReal
		entry.Amount = *txn.CashbackShareFixed
		entry.Source = "fixed"

	case domain.CashbackRealPercent, domain.CashbackNoneBack:
		res, err := ResolveRate(cfg, txn.CategoryID, cycleSpend)
		if err != nil {
			return domain.CashbackEntry{}, err
		}
		entry.Mode = domain.EntryReal
		if txn.CashbackMode == domain.CashbackNoneBack {
			// не выплачивается, только для отчёта о марже
			entry.Mode = domain.EntryVirtual
		}
		entry.Amount = res.Reward(txn.Amount)
		entry.Rate = res.Rate
		entry.Source = string(res.Source)

	case domain.CashbackVoluntary:
		entry.Mode = domain.EntryVoluntary
		entry.Source = "voluntary"
		if txn.CashbackShareFixed != nil {
			entry.Amount = *txn.CashbackShareFixed
		} else {
			entry.Rate = *txn.CashbackSharePercent
			entry.Amount = txn.Amount.Abs().Mul(entry.Rate)
		}
	}

	return entry, nil
}
