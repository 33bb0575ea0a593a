package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"moneyflow/internal/cashback"
	"moneyflow/internal/domain"
	"moneyflow/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStore interface {
	storage.AccountStorage
	storage.TransactionStorage
	storage.CashbackStorage
}

// TransactionService persists transactions and keeps their cashback entry in sync.
type TransactionService struct {
	store TransactionStore
}

func NewTransactionService(store TransactionStore) *TransactionService {
	return &TransactionService{store: store}
}

func (s *TransactionService) Create(ctx context.Context, txn domain.Transaction) (domain.Transaction, error) {
	if err := validateTransaction(txn); err != nil {
		return domain.Transaction{}, err
	}
	if _, err := s.store.GetAccount(ctx, txn.AccountID); err != nil {
		return domain.Transaction{}, err
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if err := s.store.InsertTransaction(ctx, txn); err != nil {
		return domain.Transaction{}, err
	}
	return s.syncCashback(ctx, txn)
}

// Update replaces the editable fields of a stored transaction. Allocation
// metadata and the batch parent link always come from the stored row, and a
// persisted cycle tag is kept unless the edit sets one explicitly.
func (s *TransactionService) Update(ctx context.Context, txn domain.Transaction) (domain.Transaction, error) {
	if err := validateTransaction(txn); err != nil {
		return domain.Transaction{}, err
	}
	stored, err := s.store.GetTransaction(ctx, txn.ID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := checkRepaymentEdit(*stored, txn); err != nil {
		return domain.Transaction{}, err
	}
	if _, err := s.store.GetAccount(ctx, txn.AccountID); err != nil {
		return domain.Transaction{}, err
	}

	txn.ParentID = stored.ParentID
	txn.Metadata = stored.Metadata
	if txn.Tag == "" {
		txn.Tag = stored.Tag
	}
	if err := s.store.UpdateTransaction(ctx, txn); err != nil {
		return domain.Transaction{}, err
	}
	return s.syncCashback(ctx, txn)
}

func (s *TransactionService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteCashbackEntry(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteTransaction(ctx, id)
}

func (s *TransactionService) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *TransactionService) CashbackEntry(ctx context.Context, transactionID uuid.UUID) (*domain.CashbackEntry, error) {
	return s.store.GetCashbackEntry(ctx, transactionID)
}

func validateTransaction(txn domain.Transaction) error {
	if txn.AccountID == uuid.Nil {
		return fmt.Errorf("%w: account_id is required", ErrInvalidTransaction)
	}
	if txn.OccurredAt.IsZero() {
		return fmt.Errorf("%w: occurred_at is required", ErrInvalidTransaction)
	}
	if txn.Tag != "" {
		if _, err := time.Parse(cashback.TagLayout, txn.Tag); err != nil {
			return fmt.Errorf("%w: tag must be YYYY-MM", ErrInvalidTransaction)
		}
	}
	if err := cashback.ValidateShares(txn); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	return nil
}

// checkRepaymentEdit rejects edits that would invalidate a recorded allocation:
// switching type to or from repayment, or changing a repayment's person or amount.
func checkRepaymentEdit(stored, txn domain.Transaction) error {
	if stored.Type != txn.Type && (stored.Type == domain.TypeRepayment || txn.Type == domain.TypeRepayment) {
		return fmt.Errorf("%w: type of a repayment cannot change", ErrInvalidTransaction)
	}
	if stored.Type != domain.TypeRepayment {
		return nil
	}
	if !samePerson(stored.PersonID, txn.PersonID) {
		return fmt.Errorf("%w: person of a repayment cannot change", ErrInvalidTransaction)
	}
	if !stored.Amount.Equal(txn.Amount) {
		return fmt.Errorf("%w: amount of a repayment cannot change", ErrInvalidTransaction)
	}
	return nil
}

func samePerson(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// syncCashback recomputes the transaction's cashback entry. A broken account
// config never fails the write: the entry is dropped and a warning logged.
func (s *TransactionService) syncCashback(ctx context.Context, txn domain.Transaction) (domain.Transaction, error) {
	if txn.CashbackMode == domain.CashbackNone {
		return txn, s.store.DeleteCashbackEntry(ctx, txn.ID)
	}

	acct, err := s.store.GetAccount(ctx, txn.AccountID)
	if err != nil {
		return txn, err
	}

	cfg, err := cashback.ParseConfig(acct.CashbackConfig)
	if err != nil {
		return txn, s.skipCashback(ctx, txn, err)
	}
	window, err := cashback.ResolveTransactionCycle(cfg, txn.OccurredAt, txn.Tag)
	if err != nil {
		return txn, s.skipCashback(ctx, txn, err)
	}

	spend, err := s.store.SumSpend(ctx, acct.ID, window.Start, window.Next())
	if err != nil {
		return txn, err
	}
	// транзакция с тегом другого цикла ещё не попала в сумму по датам
	if txn.CountsAsSpend() && !window.Contains(txn.OccurredAt) {
		spend = spend.Add(txn.Amount.Abs())
	}

	entry, err := cashback.BuildEntry(txn, *acct, spend)
	if err != nil {
		if cashback.IsConfigError(err) {
			return txn, s.skipCashback(ctx, txn, err)
		}
		return txn, err
	}

	if txn.Tag == "" {
		txn.Tag = entry.CycleTag
		if err := s.store.UpdateTransaction(ctx, txn); err != nil {
			return txn, err
		}
	}
	if err := s.store.UpsertCashbackEntry(ctx, entry); err != nil {
		return txn, err
	}
	slog.Debug("cashback entry saved", "transaction_id", txn.ID, "mode", entry.Mode, "amount", entry.Amount.String())
	return txn, nil
}

func (s *TransactionService) skipCashback(ctx context.Context, txn domain.Transaction, cause error) error {
	slog.Warn("cashback skipped", "transaction_id", txn.ID, "account_id", txn.AccountID, "error", cause)
	return s.store.DeleteCashbackEntry(ctx, txn.ID)
}

// CycleSummary describes one cashback cycle of an account.
type CycleSummary struct {
	AccountID  uuid.UUID           `json:"account_id"`
	Tag        string              `json:"tag"`
	Window     cashback.Window     `json:"window"`
	Spend      decimal.Decimal     `json:"spend"`
	Resolution cashback.Resolution `json:"resolution"`
	Real       decimal.Decimal     `json:"real"`
	Virtual    decimal.Decimal     `json:"virtual"`
	Voluntary  decimal.Decimal     `json:"voluntary"`
	DueDate    *time.Time          `json:"due_date,omitempty"`
}

// CycleSummary resolves the cycle containing ref (or the tagged cycle when
// tag is set) and totals its entries per mode. categoryID selects the rate
// shown in the resolution.
func (s *TransactionService) CycleSummary(ctx context.Context, accountID uuid.UUID, ref time.Time, tag, categoryID string) (*CycleSummary, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	cfg, err := cashback.ParseConfig(acct.CashbackConfig)
	if err != nil {
		return nil, err
	}
	window, err := cashback.ResolveTransactionCycle(cfg, ref, tag)
	if err != nil {
		return nil, err
	}
	spend, err := s.store.SumSpend(ctx, accountID, window.Start, window.Next())
	if err != nil {
		return nil, err
	}
	res, err := cashback.ResolveRate(cfg, categoryID, spend)
	if err != nil {
		return nil, err
	}

	sum := &CycleSummary{
		AccountID:  accountID,
		Tag:        window.Tag(),
		Window:     window,
		Spend:      spend,
		Resolution: res,
		Real:       decimal.Zero,
		Virtual:    decimal.Zero,
		Voluntary:  decimal.Zero,
	}
	if pc, ok := cfg.(cashback.ProgramConfig); ok && pc.DueDate > 0 {
		due := dueDate(window, pc.DueDate)
		sum.DueDate = &due
	}

	entries, err := s.store.ListCashbackEntries(ctx, accountID, sum.Tag)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		switch e.Mode {
		case domain.EntryReal:
			sum.Real = sum.Real.Add(e.Amount)
		case domain.EntryVirtual:
			sum.Virtual = sum.Virtual.Add(e.Amount)
		case domain.EntryVoluntary:
			sum.Voluntary = sum.Voluntary.Add(e.Amount)
		}
	}
	return sum, nil
}

// dueDate is the payment due day in the month after the cycle ends, clamped to the month length.
func dueDate(w cashback.Window, day int) time.Time {
	first := time.Date(w.End.Year(), w.End.Month()+1, 1, 0, 0, 0, 0, w.End.Location())
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, first.Location())
}

var ErrInvalidTransaction = errors.New("invalid transaction")
