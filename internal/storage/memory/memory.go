// Package memory is an in-process implementation of the storage interfaces,
// used by tests and local experiments.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"moneyflow/internal/domain"
	"moneyflow/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Storage struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]domain.Account
	people       map[uuid.UUID]domain.Person
	transactions map[uuid.UUID]domain.Transaction
	entries      map[uuid.UUID]domain.CashbackEntry
}

func New() *Storage {
	return &Storage{
		accounts:     make(map[uuid.UUID]domain.Account),
		people:       make(map[uuid.UUID]domain.Person),
		transactions: make(map[uuid.UUID]domain.Transaction),
		entries:      make(map[uuid.UUID]domain.CashbackEntry),
	}
}

func (s *Storage) CreateAccount(_ context.Context, acct domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.ID]; ok {
		return fmt.Errorf("account %s already exists", acct.ID)
	}
	s.accounts[acct.ID] = acct
	return nil
}

func (s *Storage) GetAccount(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("get account: %w", storage.ErrNotFound)
	}
	return &acct, nil
}

func (s *Storage) UpdateCashbackConfig(_ context.Context, id uuid.UUID, cfg json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("update cashback config: %w", storage.ErrNotFound)
	}
	acct.CashbackConfig = cfg
	s.accounts[id] = acct
	return nil
}

func (s *Storage) CreatePerson(_ context.Context, p domain.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.people[p.ID] = p
	return nil
}

func (s *Storage) GetPerson(_ context.Context, id uuid.UUID) (*domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.people[id]
	if !ok {
		return nil, fmt.Errorf("get person: %w", storage.ErrNotFound)
	}
	return &p, nil
}

func (s *Storage) ListPeople(_ context.Context) ([]domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Person, 0, len(s.people))
	for _, p := range s.people {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Storage) InsertTransaction(_ context.Context, txn domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[txn.ID]; ok {
		return fmt.Errorf("transaction %s already exists", txn.ID)
	}
	s.transactions[txn.ID] = txn
	return nil
}

func (s *Storage) UpdateTransaction(_ context.Context, txn domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[txn.ID]; !ok {
		return fmt.Errorf("update transaction: %w", storage.ErrNotFound)
	}
	s.transactions[txn.ID] = txn
	return nil
}

// DeleteTransaction also removes the cashback entry, like the FK cascade does in Postgres.
func (s *Storage) DeleteTransaction(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[id]; !ok {
		return fmt.Errorf("delete transaction: %w", storage.ErrNotFound)
	}
	delete(s.transactions, id)
	delete(s.entries, id)
	return nil
}

func (s *Storage) GetTransaction(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txn, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("get transaction: %w", storage.ErrNotFound)
	}
	return &txn, nil
}

func (s *Storage) SumSpend(_ context.Context, accountID uuid.UUID, from, until time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, t := range s.transactions {
		if t.AccountID != accountID || !t.CountsAsSpend() {
			continue
		}
		if t.OccurredAt.Before(from) || !t.OccurredAt.Before(until) {
			continue
		}
		total = total.Add(t.Amount.Abs())
	}
	return total, nil
}

func (s *Storage) ListDebts(_ context.Context, personID uuid.UUID) ([]domain.Transaction, error) {
	return s.listByPerson(personID, domain.TypeDebt), nil
}

func (s *Storage) ListRepayments(_ context.Context, personID uuid.UUID) ([]domain.Transaction, error) {
	return s.listByPerson(personID, domain.TypeRepayment), nil
}

func (s *Storage) listByPerson(personID uuid.UUID, typ domain.TransactionType) []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Transaction
	for _, t := range s.transactions {
		if t.Type == typ && t.PersonID != nil && *t.PersonID == personID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out
}

func (s *Storage) SetMetadata(_ context.Context, transactionID uuid.UUID, md domain.TransactionMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.transactions[transactionID]
	if !ok {
		return fmt.Errorf("set metadata: %w", storage.ErrNotFound)
	}
	txn.Metadata = &md
	s.transactions[transactionID] = txn
	return nil
}

func (s *Storage) UpsertCashbackEntry(_ context.Context, e domain.CashbackEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[e.TransactionID]; !ok {
		return fmt.Errorf("upsert cashback entry: transaction %s: %w", e.TransactionID, storage.ErrNotFound)
	}
	s.entries[e.TransactionID] = e
	return nil
}

func (s *Storage) DeleteCashbackEntry(_ context.Context, transactionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, transactionID)
	return nil
}

func (s *Storage) GetCashbackEntry(_ context.Context, transactionID uuid.UUID) (*domain.CashbackEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[transactionID]
	if !ok {
		return nil, fmt.Errorf("get cashback entry: %w", storage.ErrNotFound)
	}
	return &e, nil
}

func (s *Storage) ListCashbackEntries(_ context.Context, accountID uuid.UUID, cycleTag string) ([]domain.CashbackEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CashbackEntry
	for _, e := range s.entries {
		if e.AccountID == accountID && e.CycleTag == cycleTag {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ComputedAt.Before(out[j].ComputedAt) })
	return out, nil
}

// CountEntries returns the number of stored cashback entries.
func (s *Storage) CountEntries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
