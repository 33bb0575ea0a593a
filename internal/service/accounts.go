package service

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"moneyflow/internal/cashback"
	"moneyflow/internal/domain"
	"moneyflow/internal/storage"

	"github.com/google/uuid"
)

type AccountService struct {
	store storage.AccountStorage
}

func NewAccountService(store storage.AccountStorage) *AccountService {
	return &AccountService{store: store}
}

// Create stores a new account. A non-empty cashback config must parse.
func (s *AccountService) Create(ctx context.Context, name, typ string, cfg json.RawMessage) (domain.Account, error) {
	if t := bytes.TrimSpace(cfg); len(t) == 0 || bytes.Equal(t, []byte("null")) {
		cfg = nil
	} else if _, err := cashback.ParseConfig(cfg); err != nil {
		return domain.Account{}, err
	}
	acct := domain.Account{
		ID:             uuid.New(),
		Name:           name,
		Type:           typ,
		CashbackConfig: cfg,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		return domain.Account{}, err
	}
	return acct, nil
}

func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// SetCashbackConfig validates the config at the boundary before storing it.
func (s *AccountService) SetCashbackConfig(ctx context.Context, id uuid.UUID, cfg json.RawMessage) (cashback.Config, error) {
	parsed, err := cashback.ParseConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateCashbackConfig(ctx, id, cfg); err != nil {
		return nil, err
	}
	return parsed, nil
}
