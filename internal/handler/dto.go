package handler

import (
	"encoding/json"
	"time"

	"moneyflow/internal/domain"
	"moneyflow/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// === DTO ===

type CreateAccountRequest struct {
	Name           string          `json:"name" validate:"required,notblank"`
	Type           string          `json:"type" validate:"required,notblank"`
	CashbackConfig json.RawMessage `json:"cashback_config"`
}

type CreatePersonRequest struct {
	Name string `json:"name" validate:"required,notblank"`
}

type TransactionRequest struct {
	AccountID            string           `json:"account_id" validate:"required,uuid"`
	PersonID             string           `json:"person_id" validate:"omitempty,uuid"`
	Type                 string           `json:"type" validate:"required,txntype"`
	Amount               decimal.Decimal  `json:"amount" validate:"gt=0"`
	OccurredAt           time.Time        `json:"occurred_at" validate:"required"`
	CategoryID           string           `json:"category_id"`
	CashbackMode         string           `json:"cashback_mode" validate:"cashbackmode"`
	CashbackSharePercent *decimal.Decimal `json:"cashback_share_percent" validate:"omitempty,gte=0"`
	CashbackShareFixed   *decimal.Decimal `json:"cashback_share_fixed" validate:"omitempty,gte=0"`
	Tag                  string           `json:"tag" validate:"yearmonth"`
	Note                 string           `json:"note" validate:"max=500"`
}

func (r TransactionRequest) toDomain(id uuid.UUID) domain.Transaction {
	txn := domain.Transaction{
		ID:                   id,
		AccountID:            uuid.MustParse(r.AccountID),
		Type:                 domain.TransactionType(r.Type),
		Amount:               r.Amount,
		OccurredAt:           r.OccurredAt,
		CategoryID:           r.CategoryID,
		CashbackMode:         domain.CashbackMode(r.CashbackMode),
		CashbackSharePercent: r.CashbackSharePercent,
		CashbackShareFixed:   r.CashbackShareFixed,
		Tag:                  r.Tag,
		Note:                 normalizeText(r.Note),
	}
	if r.PersonID != "" {
		pid := uuid.MustParse(r.PersonID)
		txn.PersonID = &pid
	}
	return txn
}

type RepaymentRequest struct {
	AccountID  string          `json:"account_id" validate:"required,uuid"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	OccurredAt time.Time       `json:"occurred_at"`
	Tag        string          `json:"tag" validate:"yearmonth"`
	Note       string          `json:"note" validate:"max=500"`
}

func (r RepaymentRequest) toService(personID uuid.UUID) service.RepaymentRequest {
	return service.RepaymentRequest{
		PersonID:   personID,
		AccountID:  uuid.MustParse(r.AccountID),
		Amount:     r.Amount,
		OccurredAt: r.OccurredAt,
		Tag:        r.Tag,
		Note:       normalizeText(r.Note),
	}
}

type BatchRequest struct {
	AccountID  string          `json:"account_id" validate:"required,uuid"`
	Amount     decimal.Decimal `json:"amount" validate:"gte=0"`
	OccurredAt time.Time       `json:"occurred_at"`
	Note       string          `json:"note" validate:"max=500"`
	Children   []struct {
		PersonID string          `json:"person_id" validate:"required,uuid"`
		Amount   decimal.Decimal `json:"amount" validate:"gt=0"`
		Tag      string          `json:"tag" validate:"yearmonth"`
		Note     string          `json:"note" validate:"max=500"`
	} `json:"children" validate:"required,min=1,dive"`
}

func (r BatchRequest) toService() service.BatchRequest {
	accountID := uuid.MustParse(r.AccountID)
	req := service.BatchRequest{
		Parent: domain.Transaction{
			AccountID:  accountID,
			Type:       domain.TypeTransfer,
			Amount:     r.Amount,
			OccurredAt: r.OccurredAt,
			Note:       normalizeText(r.Note),
		},
	}
	for _, c := range r.Children {
		req.Children = append(req.Children, service.RepaymentRequest{
			PersonID:  uuid.MustParse(c.PersonID),
			AccountID: accountID,
			Amount:    c.Amount,
			Tag:       c.Tag,
			Note:      normalizeText(c.Note),
		})
	}
	return req
}

type DebtsResponse struct {
	PersonID    uuid.UUID       `json:"person_id"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Debts       []domain.Debt   `json:"debts"`
}
