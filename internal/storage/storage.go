// internal/storage/storage.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"moneyflow/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")

type AccountStorage interface {
	CreateAccount(ctx context.Context, acct domain.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	UpdateCashbackConfig(ctx context.Context, id uuid.UUID, cfg json.RawMessage) error
}

type PersonStorage interface {
	CreatePerson(ctx context.Context, p domain.Person) error
	GetPerson(ctx context.Context, id uuid.UUID) (*domain.Person, error)
	ListPeople(ctx context.Context) ([]domain.Person, error)
}

type TransactionStorage interface {
	InsertTransaction(ctx context.Context, txn domain.Transaction) error
	UpdateTransaction(ctx context.Context, txn domain.Transaction) error
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// SumSpend sums absolute amounts of the account's expense and debt
	// transactions that occurred within [from, until).
	SumSpend(ctx context.Context, accountID uuid.UUID, from, until time.Time) (decimal.Decimal, error)
}

type CashbackStorage interface {
	// UpsertCashbackEntry keeps at most one entry per transaction.
	UpsertCashbackEntry(ctx context.Context, e domain.CashbackEntry) error
	DeleteCashbackEntry(ctx context.Context, transactionID uuid.UUID) error
	GetCashbackEntry(ctx context.Context, transactionID uuid.UUID) (*domain.CashbackEntry, error)
	ListCashbackEntries(ctx context.Context, accountID uuid.UUID, cycleTag string) ([]domain.CashbackEntry, error)
}

type DebtStorage interface {
	// ListDebts returns the person's debt transactions, oldest first.
	ListDebts(ctx context.Context, personID uuid.UUID) ([]domain.Transaction, error)
	// ListRepayments returns the person's repayment transactions, oldest first.
	ListRepayments(ctx context.Context, personID uuid.UUID) ([]domain.Transaction, error)
	SetMetadata(ctx context.Context, transactionID uuid.UUID, md domain.TransactionMetadata) error
}
