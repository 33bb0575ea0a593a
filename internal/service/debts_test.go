package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"moneyflow/internal/debt"
	"moneyflow/internal/domain"
	"moneyflow/internal/storage"
	"moneyflow/internal/storage/memory"

	"github.com/google/uuid"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []domain.RepaymentAllocation
}

func (n *recordingNotifier) RepaymentAllocated(_ context.Context, _ domain.Person, _ domain.Transaction, alloc domain.RepaymentAllocation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, alloc)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type debtFixture struct {
	store    *memory.Storage
	svc      *DebtService
	notifier *recordingNotifier
	person   domain.Person
	account  uuid.UUID
}

func newDebtFixture(t *testing.T) *debtFixture {
	t.Helper()
	store := memory.New()
	n := &recordingNotifier{}
	svc := NewDebtService(store, debt.NewKeyedMutex(), n)
	p, err := svc.CreatePerson(context.Background(), "Лена")
	if err != nil {
		t.Fatalf("CreatePerson: %v", err)
	}
	return &debtFixture{store: store, svc: svc, notifier: n, person: p, account: uuid.New()}
}

func (f *debtFixture) lend(t *testing.T, personID uuid.UUID, amount string, at time.Time) domain.Transaction {
	t.Helper()
	txn := domain.Transaction{
		ID:         uuid.New(),
		AccountID:  f.account,
		PersonID:   &personID,
		Type:       domain.TypeDebt,
		Amount:     dec(amount),
		OccurredAt: at,
		Tag:        at.Format("2006-01"),
	}
	if err := f.store.InsertTransaction(context.Background(), txn); err != nil {
		t.Fatalf("insert debt: %v", err)
	}
	return txn
}

var (
	jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb1 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
)

func TestDebtService_RepayFIFO(t *testing.T) {
	ctx := context.Background()
	f := newDebtFixture(t)
	a := f.lend(t, f.person.ID, "100000", jan1)
	b := f.lend(t, f.person.ID, "50000", feb1)

	res, err := f.svc.Repay(ctx, RepaymentRequest{PersonID: f.person.ID, AccountID: f.account, Amount: dec("120000")})
	if err != nil {
		t.Fatalf("Repay: %v", err)
	}
	debts := res.Allocation.Debts
	if len(debts) != 2 || *debts[0].ID != a.ID || *debts[1].ID != b.ID {
		t.Fatalf("allocation = %+v, want A then B", debts)
	}
	if !debts[0].Amount.Equal(dec("100000")) || !debts[1].Amount.Equal(dec("20000")) || !res.Unallocated.IsZero() {
		t.Errorf("allocation = %+v, unallocated %s", debts, res.Unallocated)
	}

	stored, err := f.store.GetTransaction(ctx, res.Transaction.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if stored.Metadata == nil || stored.Metadata.BulkAllocation == nil {
		t.Fatal("repayment stored without allocation metadata")
	}

	pool, err := f.svc.Outstanding(ctx, f.person.ID)
	if err != nil {
		t.Fatalf("Outstanding: %v", err)
	}
	if len(pool) != 1 || pool[0].ID != b.ID || !pool[0].Remaining.Equal(dec("30000")) {
		t.Errorf("pool = %+v, want B with 30000", pool)
	}
	if f.notifier.count() != 1 {
		t.Errorf("notifier called %d times, want 1", f.notifier.count())
	}
}

func TestDebtService_Overpayment(t *testing.T) {
	ctx := context.Background()
	f := newDebtFixture(t)
	f.lend(t, f.person.ID, "100000", jan1)
	f.lend(t, f.person.ID, "50000", feb1)

	res, err := f.svc.Repay(ctx, RepaymentRequest{PersonID: f.person.ID, AccountID: f.account, Amount: dec("200000"), Note: "с запасом"})
	if err != nil {
		t.Fatalf("Repay: %v", err)
	}
	if !res.Unallocated.Equal(dec("50000")) {
		t.Errorf("unallocated = %s, want 50000", res.Unallocated)
	}
	last := res.Allocation.Debts[len(res.Allocation.Debts)-1]
	if last.ID != nil || last.Note != "с запасом" {
		t.Errorf("excess line = %+v", last)
	}

	pool, _ := f.svc.Outstanding(ctx, f.person.ID)
	if len(pool) != 0 {
		t.Errorf("pool = %+v, want empty", pool)
	}
}

func TestDebtService_RepayValidation(t *testing.T) {
	ctx := context.Background()
	f := newDebtFixture(t)

	if _, err := f.svc.Repay(ctx, RepaymentRequest{PersonID: f.person.ID, AccountID: f.account, Amount: dec("0")}); !errors.Is(err, ErrInvalidRepayment) {
		t.Errorf("zero amount: got %v", err)
	}
	if _, err := f.svc.Repay(ctx, RepaymentRequest{PersonID: f.person.ID, Amount: dec("10")}); !errors.Is(err, ErrInvalidRepayment) {
		t.Errorf("missing account: got %v", err)
	}
	if _, err := f.svc.Repay(ctx, RepaymentRequest{PersonID: uuid.New(), AccountID: f.account, Amount: dec("10")}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown person: got %v", err)
	}
}

func TestDebtService_ConcurrentRepayments(t *testing.T) {
	ctx := context.Background()
	f := newDebtFixture(t)
	f.lend(t, f.person.ID, "50", jan1)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Repay(ctx, RepaymentRequest{PersonID: f.person.ID, AccountID: f.account, Amount: dec("10")}); err != nil {
				t.Errorf("Repay: %v", err)
			}
		}()
	}
	wg.Wait()

	repayments, _ := f.store.ListRepayments(ctx, f.person.ID)
	allocated := dec("0")
	for _, r := range repayments {
		allocated = allocated.Add(r.Metadata.BulkAllocation.Allocated())
	}
	if !allocated.Equal(dec("50")) {
		t.Errorf("allocated %s in total, want exactly 50", allocated)
	}
}

func TestDebtService_CreateBatch(t *testing.T) {
	ctx := context.Background()
	f := newDebtFixture(t)
	other, _ := f.svc.CreatePerson(ctx, "Олег")
	f.lend(t, f.person.ID, "300", jan1)
	f.lend(t, other.ID, "200", jan1)

	res, err := f.svc.CreateBatch(ctx, BatchRequest{
		Parent: domain.Transaction{AccountID: f.account, OccurredAt: feb1},
		Children: []RepaymentRequest{
			{PersonID: f.person.ID, Amount: dec("300")},
			{PersonID: other.ID, Amount: dec("150")},
		},
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if res.Parent.Type != domain.TypeTransfer || !res.Parent.Amount.Equal(dec("450")) {
		t.Errorf("parent = %+v", res.Parent)
	}
	for _, c := range res.Children {
		if c.Transaction.ParentID == nil || *c.Transaction.ParentID != res.Parent.ID {
			t.Errorf("child %s not linked to parent", c.Transaction.ID)
		}
		if !c.Transaction.OccurredAt.Equal(feb1) || c.Transaction.AccountID != f.account {
			t.Errorf("child did not inherit parent date/account: %+v", c.Transaction)
		}
	}
	pool, _ := f.svc.Outstanding(ctx, other.ID)
	if len(pool) != 1 || !pool[0].Remaining.Equal(dec("50")) {
		t.Errorf("other pool = %+v, want 50 left", pool)
	}
	if f.notifier.count() != 2 {
		t.Errorf("notifier called %d times, want 2", f.notifier.count())
	}
}

// failingStore fails the n-th InsertTransaction call.
type failingStore struct {
	*memory.Storage
	mu      sync.Mutex
	calls   int
	failAt  int
	deleted []uuid.UUID
}

func (s *failingStore) InsertTransaction(ctx context.Context, txn domain.Transaction) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls == s.failAt
	s.mu.Unlock()
	if fail {
		return errors.New("insert failed")
	}
	return s.Storage.InsertTransaction(ctx, txn)
}

func (s *failingStore) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	s.deleted = append(s.deleted, id)
	return s.Storage.DeleteTransaction(ctx, id)
}

func TestDebtService_CreateBatchRollsBack(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	store := &failingStore{Storage: mem, failAt: 3} // родитель, первый ребёнок, сбой на втором
	n := &recordingNotifier{}
	svc := NewDebtService(store, debt.NewKeyedMutex(), n)

	p1, _ := svc.CreatePerson(ctx, "A")
	p2, _ := svc.CreatePerson(ctx, "B")

	_, err := svc.CreateBatch(ctx, BatchRequest{
		Parent: domain.Transaction{AccountID: uuid.New(), OccurredAt: feb1},
		Children: []RepaymentRequest{
			{PersonID: p1.ID, Amount: dec("10")},
			{PersonID: p2.ID, Amount: dec("20")},
		},
	})
	if err == nil {
		t.Fatal("expected batch to fail")
	}

	if len(store.deleted) != 2 {
		t.Fatalf("rollback deleted %d transactions, want child then parent", len(store.deleted))
	}
	for _, id := range store.deleted {
		if _, err := mem.GetTransaction(ctx, id); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("transaction %s survived rollback", id)
		}
	}
	r1, _ := mem.ListRepayments(ctx, p1.ID)
	if len(r1) != 0 {
		t.Errorf("%d repayments left for first person", len(r1))
	}
	if n.count() != 0 {
		t.Errorf("notifier called %d times on failed batch", n.count())
	}
}

func TestDebtService_CreateBatchUnknownPerson(t *testing.T) {
	ctx := context.Background()
	f := newDebtFixture(t)

	_, err := f.svc.CreateBatch(ctx, BatchRequest{
		Parent: domain.Transaction{AccountID: f.account},
		Children: []RepaymentRequest{
			{PersonID: f.person.ID, Amount: dec("10")},
			{PersonID: uuid.New(), Amount: dec("20")},
		},
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if r, _ := f.store.ListRepayments(ctx, f.person.ID); len(r) != 0 {
		t.Errorf("%d repayments left after rollback", len(r))
	}

	if _, err := f.svc.CreateBatch(ctx, BatchRequest{Parent: domain.Transaction{AccountID: f.account}}); !errors.Is(err, ErrInvalidRepayment) {
		t.Errorf("empty batch: got %v", err)
	}
}

func TestDebtService_ReplayIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newDebtFixture(t)
	f.lend(t, f.person.ID, "100000", jan1)
	f.lend(t, f.person.ID, "50000", feb1)

	pid := f.person.ID
	legacy := domain.Transaction{
		ID: uuid.New(), AccountID: f.account, PersonID: &pid, Type: domain.TypeRepayment,
		Amount: dec("120000"), OccurredAt: feb1.AddDate(0, 0, 5),
	}
	if err := f.store.InsertTransaction(ctx, legacy); err != nil {
		t.Fatalf("insert: %v", err)
	}

	before, _ := f.svc.Outstanding(ctx, pid)
	if !debt.Outstanding(before).Equal(dec("150000")) {
		t.Fatalf("outstanding before replay = %s", debt.Outstanding(before))
	}

	report, err := f.svc.Replay(ctx, pid)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if report.Updated != 1 || !report.Outstanding.Equal(dec("30000")) {
		t.Errorf("report = %+v, want 1 updated, 30000 outstanding", report)
	}

	again, err := f.svc.Replay(ctx, pid)
	if err != nil {
		t.Fatalf("second Replay: %v", err)
	}
	if again.Updated != 0 || !again.Outstanding.Equal(dec("30000")) {
		t.Errorf("second report = %+v, want nothing updated", again)
	}

	after, _ := f.svc.Outstanding(ctx, pid)
	if !debt.Outstanding(after).Equal(dec("30000")) {
		t.Errorf("outstanding after replay = %s", debt.Outstanding(after))
	}

	reports, err := f.svc.ReplayAll(ctx)
	if err != nil {
		t.Fatalf("ReplayAll: %v", err)
	}
	if len(reports) != 1 || reports[0].Updated != 0 {
		t.Errorf("ReplayAll = %+v", reports)
	}
}

func TestDebtService_Statement(t *testing.T) {
	ctx := context.Background()
	f := newDebtFixture(t)
	f.lend(t, f.person.ID, "500", jan1)
	if _, err := f.svc.Repay(ctx, RepaymentRequest{PersonID: f.person.ID, AccountID: f.account, Amount: dec("200")}); err != nil {
		t.Fatalf("Repay: %v", err)
	}

	var buf bytes.Buffer
	if err := f.svc.Statement(ctx, f.person.ID, &buf); err != nil {
		t.Fatalf("Statement: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("empty statement")
	}

	if err := f.svc.Statement(ctx, uuid.New(), &buf); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown person: got %v", err)
	}
}

func TestDebtService_BackdatedRepaymentMatchesReplay(t *testing.T) {
	ctx := context.Background()
	f := newDebtFixture(t)
	a := f.lend(t, f.person.ID, "100000", jan1)
	later := f.lend(t, f.person.ID, "50000", feb1.AddDate(0, 1, 0))

	res, err := f.svc.Repay(ctx, RepaymentRequest{PersonID: f.person.ID, AccountID: f.account, Amount: dec("120000"), OccurredAt: feb1})
	if err != nil {
		t.Fatalf("Repay: %v", err)
	}
	if len(res.Allocation.Debts) != 2 || *res.Allocation.Debts[0].ID != a.ID || res.Allocation.Debts[1].ID != nil {
		t.Fatalf("allocation = %+v, want the jan1 debt plus an unassigned remainder", res.Allocation.Debts)
	}
	if !res.Unallocated.Equal(dec("20000")) {
		t.Errorf("unallocated = %s, want 20000", res.Unallocated)
	}

	// та же история без записанного распределения
	bare := res.Transaction
	bare.Metadata = nil
	debts := []domain.Debt{
		{ID: a.ID, PersonID: f.person.ID, Amount: a.Amount, OccurredAt: a.OccurredAt},
		{ID: later.ID, PersonID: f.person.ID, Amount: later.Amount, OccurredAt: later.OccurredAt},
	}
	replayed := debt.Replay(debts, []domain.Transaction{bare}).Computed[bare.ID]
	if len(replayed.Debts) != len(res.Allocation.Debts) {
		t.Fatalf("replay allocation = %+v, live = %+v", replayed.Debts, res.Allocation.Debts)
	}
	for i := range replayed.Debts {
		if !replayed.Debts[i].Amount.Equal(res.Allocation.Debts[i].Amount) {
			t.Errorf("debt %d: replay %s, live %s", i, replayed.Debts[i].Amount, res.Allocation.Debts[i].Amount)
		}
	}
}
