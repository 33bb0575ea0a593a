// internal/domain/models.go
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeExpense   TransactionType = "expense"
	TypeIncome    TransactionType = "income"
	TypeDebt      TransactionType = "debt"
	TypeRepayment TransactionType = "repayment"
	TypeTransfer  TransactionType = "transfer"
)

// CashbackMode — как транзакция участвует в кэшбэке
type CashbackMode string

const (
	CashbackNone        CashbackMode = ""
	CashbackRealFixed   CashbackMode = "real_fixed"
	CashbackRealPercent CashbackMode = "real_percent"
	CashbackNoneBack    CashbackMode = "none_back"
	CashbackVoluntary   CashbackMode = "voluntary"
)

type EntryMode string

const (
	EntryReal      EntryMode = "real"
	EntryVirtual   EntryMode = "virtual"
	EntryVoluntary EntryMode = "voluntary"
)

// SettledThreshold: a debt whose remaining balance is below it is settled.
var SettledThreshold = decimal.NewFromFloat(0.01)

type Account struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	CashbackConfig json.RawMessage `json:"cashback_config,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Person struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Transaction struct {
	ID                   uuid.UUID            `json:"id"`
	AccountID            uuid.UUID            `json:"account_id"`
	PersonID             *uuid.UUID           `json:"person_id,omitempty"`
	ParentID             *uuid.UUID           `json:"parent_id,omitempty"`
	Type                 TransactionType      `json:"type"`
	Amount               decimal.Decimal      `json:"amount"`
	OccurredAt           time.Time            `json:"occurred_at"`
	CategoryID           string               `json:"category_id,omitempty"`
	CashbackMode         CashbackMode         `json:"cashback_mode,omitempty"`
	CashbackSharePercent *decimal.Decimal     `json:"cashback_share_percent,omitempty"`
	CashbackShareFixed   *decimal.Decimal     `json:"cashback_share_fixed,omitempty"`
	Tag                  string               `json:"tag,omitempty"`
	Note                 string               `json:"note,omitempty"`
	Metadata             *TransactionMetadata `json:"metadata,omitempty"`
}

// CountsAsSpend reports whether the transaction accumulates towards
// a cashback cycle.
func (t Transaction) CountsAsSpend() bool {
	return t.Type == TypeExpense || t.Type == TypeDebt
}

type CashbackEntry struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Mode          EntryMode       `json:"mode"`
	Amount        decimal.Decimal `json:"amount"`
	Rate          decimal.Decimal `json:"rate"`
	Source        string          `json:"source,omitempty"`
	CycleTag      string          `json:"cycle_tag"`
	ComputedAt    time.Time       `json:"computed_at"`
}

// Debt — долг человека, который гасится погашениями по FIFO
type Debt struct {
	ID         uuid.UUID       `json:"id"`
	PersonID   uuid.UUID       `json:"person_id"`
	Amount     decimal.Decimal `json:"amount"`
	Remaining  decimal.Decimal `json:"remaining"`
	OccurredAt time.Time       `json:"occurred_at"`
	Tag        string          `json:"tag,omitempty"`
	Note       string          `json:"note,omitempty"`
}

func (d Debt) Settled() bool {
	return d.Remaining.LessThan(SettledThreshold)
}

// DebtFromTransaction converts a lend transaction into a full-balance debt.
func DebtFromTransaction(t Transaction) Debt {
	d := Debt{
		ID:         t.ID,
		Amount:     t.Amount.Abs(),
		Remaining:  t.Amount.Abs(),
		OccurredAt: t.OccurredAt,
		Tag:        t.Tag,
		Note:       t.Note,
	}
	if t.PersonID != nil {
		d.PersonID = *t.PersonID
	}
	return d
}

type AllocatedDebt struct {
	ID     *uuid.UUID      `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Tag    string          `json:"tag,omitempty"`
	Note   string          `json:"note,omitempty"`
}

type RepaymentAllocation struct {
	Amount decimal.Decimal `json:"amount"`
	Debts  []AllocatedDebt `json:"debts"`
}

// Allocated sums the amounts attributed to real debts, excluding the generic credit.
func (a RepaymentAllocation) Allocated() decimal.Decimal {
	total := decimal.Zero
	for _, d := range a.Debts {
		if d.ID != nil {
			total = total.Add(d.Amount)
		}
	}
	return total
}

// TransactionMetadata is the JSON blob stored on the transaction row.
type TransactionMetadata struct {
	BulkAllocation *RepaymentAllocation `json:"bulk_allocation,omitempty"`
}
