package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"moneyflow/internal/debt"
	"moneyflow/internal/domain"
	"moneyflow/internal/export"
	"moneyflow/internal/notify"
	"moneyflow/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrInvalidRepayment = errors.New("invalid repayment")

type DebtStore interface {
	storage.PersonStorage
	storage.TransactionStorage
	storage.DebtStorage
}

// Locker serializes the allocate-then-persist sequence per person.
type Locker interface {
	Lock(ctx context.Context, personID uuid.UUID) (func(), error)
}

type DebtService struct {
	store    DebtStore
	locker   Locker
	notifier notify.Notifier
}

func NewDebtService(store DebtStore, locker Locker, notifier notify.Notifier) *DebtService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &DebtService{store: store, locker: locker, notifier: notifier}
}

type RepaymentRequest struct {
	PersonID   uuid.UUID
	AccountID  uuid.UUID
	Amount     decimal.Decimal
	OccurredAt time.Time
	Tag        string
	Note       string
	ParentID   *uuid.UUID
}

type RepaymentResult struct {
	Transaction domain.Transaction         `json:"transaction"`
	Allocation  domain.RepaymentAllocation `json:"allocation"`
	Unallocated decimal.Decimal            `json:"unallocated"`
}

// Outstanding returns the person's unsettled debts, oldest first.
func (s *DebtService) Outstanding(ctx context.Context, personID uuid.UUID) ([]domain.Debt, error) {
	debts, repayments, err := s.history(ctx, personID)
	if err != nil {
		return nil, err
	}
	return debt.BuildPool(debt.ReconcilePool(debts, recorded(repayments))), nil
}

func (s *DebtService) history(ctx context.Context, personID uuid.UUID) ([]domain.Debt, []domain.Transaction, error) {
	debtTxns, err := s.store.ListDebts(ctx, personID)
	if err != nil {
		return nil, nil, err
	}
	repayments, err := s.store.ListRepayments(ctx, personID)
	if err != nil {
		return nil, nil, err
	}
	debts := make([]domain.Debt, len(debtTxns))
	for i, t := range debtTxns {
		debts[i] = domain.DebtFromTransaction(t)
	}
	return debts, repayments, nil
}

func recorded(repayments []domain.Transaction) []domain.RepaymentAllocation {
	var out []domain.RepaymentAllocation
	for _, r := range repayments {
		if r.Metadata != nil && r.Metadata.BulkAllocation != nil {
			out = append(out, *r.Metadata.BulkAllocation)
		}
	}
	return out
}

// Repay allocates a repayment FIFO across the person's outstanding debts and
// stores it with its allocation. Any excess is kept as a debt-less credit.
func (s *DebtService) Repay(ctx context.Context, req RepaymentRequest) (*RepaymentResult, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRepayment)
	}
	if req.AccountID == uuid.Nil {
		return nil, fmt.Errorf("%w: account_id is required", ErrInvalidRepayment)
	}
	person, err := s.store.GetPerson(ctx, req.PersonID)
	if err != nil {
		return nil, err
	}

	res, err := s.repayLocked(ctx, req)
	if err != nil {
		return nil, err
	}

	slog.Info("repayment allocated", "person_id", req.PersonID, "repayment_id", res.Transaction.ID,
		"amount", req.Amount.String(), "debts", len(res.Allocation.Debts), "unallocated", res.Unallocated.String())
	s.notifier.RepaymentAllocated(ctx, *person, res.Transaction, res.Allocation)
	return res, nil
}

// allocateAndInsert must run under the person's lock.
func (s *DebtService) allocateAndInsert(ctx context.Context, req RepaymentRequest) (*RepaymentResult, error) {
	pool, err := s.Outstanding(ctx, req.PersonID)
	if err != nil {
		return nil, err
	}

	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	alloc := debt.Allocate(debt.OpenedBy(pool, occurredAt), req.Amount)
	rec := alloc.Record(req.Amount, req.Note)
	personID := req.PersonID
	txn := domain.Transaction{
		ID:         uuid.New(),
		AccountID:  req.AccountID,
		PersonID:   &personID,
		ParentID:   req.ParentID,
		Type:       domain.TypeRepayment,
		Amount:     req.Amount,
		OccurredAt: occurredAt,
		Tag:        req.Tag,
		Note:       req.Note,
		Metadata:   &domain.TransactionMetadata{BulkAllocation: &rec},
	}
	if err := s.store.InsertTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return &RepaymentResult{Transaction: txn, Allocation: rec, Unallocated: alloc.Unallocated}, nil
}

type BatchRequest struct {
	Parent   domain.Transaction
	Children []RepaymentRequest
}

type BatchResult struct {
	Parent   domain.Transaction `json:"parent"`
	Children []RepaymentResult  `json:"children"`
}

// CreateBatch stores a parent transfer and one repayment per child. If any
// child fails, the children already stored and the parent are deleted again.
func (s *DebtService) CreateBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if len(req.Children) == 0 {
		return nil, fmt.Errorf("%w: batch has no children", ErrInvalidRepayment)
	}
	if req.Parent.AccountID == uuid.Nil {
		return nil, fmt.Errorf("%w: parent account_id is required", ErrInvalidRepayment)
	}
	total := decimal.Zero
	for i, c := range req.Children {
		if !c.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: child %d amount must be positive", ErrInvalidRepayment, i)
		}
		total = total.Add(c.Amount)
	}

	parent := req.Parent
	if parent.ID == uuid.Nil {
		parent.ID = uuid.New()
	}
	if parent.Type == "" {
		parent.Type = domain.TypeTransfer
	}
	if parent.Amount.IsZero() {
		parent.Amount = total
	}
	if parent.OccurredAt.IsZero() {
		parent.OccurredAt = time.Now().UTC()
	}
	if err := s.store.InsertTransaction(ctx, parent); err != nil {
		return nil, fmt.Errorf("insert batch parent: %w", err)
	}

	result := &BatchResult{Parent: parent}
	people := make([]domain.Person, 0, len(req.Children))
	for i, c := range req.Children {
		c.ParentID = &parent.ID
		if c.AccountID == uuid.Nil {
			c.AccountID = parent.AccountID
		}
		if c.OccurredAt.IsZero() {
			c.OccurredAt = parent.OccurredAt
		}

		person, res, err := s.batchChild(ctx, c)
		if err != nil {
			s.rollbackBatch(ctx, parent.ID, result.Children)
			return nil, fmt.Errorf("batch child %d: %w", i, err)
		}
		result.Children = append(result.Children, *res)
		people = append(people, *person)
	}

	for i, c := range result.Children {
		s.notifier.RepaymentAllocated(ctx, people[i], c.Transaction, c.Allocation)
	}
	slog.Info("batch created", "parent_id", parent.ID, "children", len(result.Children), "total", total.String())
	return result, nil
}

func (s *DebtService) batchChild(ctx context.Context, req RepaymentRequest) (*domain.Person, *RepaymentResult, error) {
	person, err := s.store.GetPerson(ctx, req.PersonID)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.repayLocked(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return person, res, nil
}

func (s *DebtService) repayLocked(ctx context.Context, req RepaymentRequest) (*RepaymentResult, error) {
	unlock, err := s.locker.Lock(ctx, req.PersonID)
	if err != nil {
		return nil, fmt.Errorf("lock person %s: %w", req.PersonID, err)
	}
	defer unlock()
	return s.allocateAndInsert(ctx, req)
}

func (s *DebtService) rollbackBatch(ctx context.Context, parentID uuid.UUID, children []RepaymentResult) {
	for i := len(children) - 1; i >= 0; i-- {
		id := children[i].Transaction.ID
		if err := s.store.DeleteTransaction(ctx, id); err != nil {
			slog.Error("batch rollback: delete child failed", "id", id, "error", err)
		}
	}
	if err := s.store.DeleteTransaction(ctx, parentID); err != nil {
		slog.Error("batch rollback: delete parent failed", "id", parentID, "error", err)
	}
}

type ReplayReport struct {
	PersonID    uuid.UUID       `json:"person_id"`
	Updated     int             `json:"updated"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// Replay fills in allocations for repayments recorded without metadata.
// Repayments that already have an allocation are left untouched, so running
// it again over the same history updates nothing.
func (s *DebtService) Replay(ctx context.Context, personID uuid.UUID) (*ReplayReport, error) {
	unlock, err := s.locker.Lock(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("lock person %s: %w", personID, err)
	}
	defer unlock()

	debts, repayments, err := s.history(ctx, personID)
	if err != nil {
		return nil, err
	}

	res := debt.Replay(debts, repayments)
	for _, r := range repayments {
		rec, ok := res.Computed[r.ID]
		if !ok {
			continue
		}
		if err := s.store.SetMetadata(ctx, r.ID, domain.TransactionMetadata{BulkAllocation: &rec}); err != nil {
			return nil, err
		}
	}

	report := &ReplayReport{
		PersonID:    personID,
		Updated:     len(res.Computed),
		Outstanding: debt.Outstanding(debt.BuildPool(res.Pool)),
	}
	if report.Updated > 0 {
		slog.Info("allocations replayed", "person_id", personID, "updated", report.Updated)
	}
	return report, nil
}

// ReplayAll replays every person and keeps going past individual failures.
func (s *DebtService) ReplayAll(ctx context.Context) ([]ReplayReport, error) {
	people, err := s.store.ListPeople(ctx)
	if err != nil {
		return nil, err
	}
	var (
		reports []ReplayReport
		errs    []error
	)
	for _, p := range people {
		r, err := s.Replay(ctx, p.ID)
		if err != nil {
			slog.Error("replay failed", "person_id", p.ID, "error", err)
			errs = append(errs, fmt.Errorf("person %s: %w", p.ID, err))
			continue
		}
		reports = append(reports, *r)
	}
	return reports, errors.Join(errs...)
}

// Statement writes the person's XLSX debt statement.
func (s *DebtService) Statement(ctx context.Context, personID uuid.UUID, w io.Writer) error {
	person, err := s.store.GetPerson(ctx, personID)
	if err != nil {
		return err
	}
	debts, repayments, err := s.history(ctx, personID)
	if err != nil {
		return err
	}
	pool := debt.BuildPool(debt.ReconcilePool(debts, recorded(repayments)))
	return export.Statement(w, *person, pool, repayments)
}

func (s *DebtService) CreatePerson(ctx context.Context, name string) (domain.Person, error) {
	p := domain.Person{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	if err := s.store.CreatePerson(ctx, p); err != nil {
		return domain.Person{}, err
	}
	return p, nil
}
