// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"moneyflow/internal/domain"
	"moneyflow/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Storage struct {
	db *pgxpool.Pool
}

func NewStorage(db *pgxpool.Pool) *Storage {
	return &Storage{db: db}
}

// sanitizeString убирает непечатаемые символы и лишние пробелы
func sanitizeString(s string) string {
	result := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			result = append(result, ' ')
		} else if unicode.IsPrint(r) {
			result = append(result, r)
		}
	}
	return strings.Join(strings.Fields(string(result)), " ")
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// === AccountStorage ===

func (s *Storage) CreateAccount(ctx context.Context, acct domain.Account) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO accounts (id, name, type, cashback_config, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, acct.ID, sanitizeString(acct.Name), acct.Type, nullableJSON(acct.CashbackConfig), acct.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Storage) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var acct domain.Account
	var cfg []byte
	err := s.db.QueryRow(ctx, `
		SELECT id, name, type, cashback_config, created_at
		FROM accounts WHERE id = $1
	`, id).Scan(&acct.ID, &acct.Name, &acct.Type, &cfg, &acct.CreatedAt)
	if err != nil {
		return nil, notFound(err, "get account")
	}
	if len(cfg) > 0 {
		acct.CashbackConfig = json.RawMessage(cfg)
	}
	return &acct, nil
}

func (s *Storage) UpdateCashbackConfig(ctx context.Context, id uuid.UUID, cfg json.RawMessage) error {
	tag, err := s.db.Exec(ctx, `UPDATE accounts SET cashback_config = $2 WHERE id = $1`, id, nullableJSON(cfg))
	if err != nil {
		return fmt.Errorf("update cashback config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update cashback config: %w", storage.ErrNotFound)
	}
	return nil
}

// === PersonStorage ===

func (s *Storage) CreatePerson(ctx context.Context, p domain.Person) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO people (id, name, created_at) VALUES ($1, $2, $3)
	`, p.ID, sanitizeString(p.Name), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func (s *Storage) GetPerson(ctx context.Context, id uuid.UUID) (*domain.Person, error) {
	var p domain.Person
	err := s.db.QueryRow(ctx, `SELECT id, name, created_at FROM people WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err, "get person")
	}
	return &p, nil
}

func (s *Storage) ListPeople(ctx context.Context) ([]domain.Person, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, created_at FROM people ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()

	var people []domain.Person
	for rows.Next() {
		var p domain.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

// === TransactionStorage ===

const transactionColumns = `
	id, account_id, person_id, parent_id, type, amount, occurred_at,
	category_id, cashback_mode, cashback_share_percent, cashback_share_fixed,
	tag, note, metadata`

func (s *Storage) InsertTransaction(ctx context.Context, txn domain.Transaction) error {
	md, err := encodeMetadata(txn.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, txn.ID, txn.AccountID, nullUUID(txn.PersonID), nullUUID(txn.ParentID), txn.Type,
		txn.Amount, txn.OccurredAt, txn.CategoryID, txn.CashbackMode,
		nullDecimal(txn.CashbackSharePercent), nullDecimal(txn.CashbackShareFixed),
		txn.Tag, sanitizeString(txn.Note), md)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	slog.Debug("transaction inserted", "id", txn.ID, "type", txn.Type)
	return nil
}

func (s *Storage) UpdateTransaction(ctx context.Context, txn domain.Transaction) error {
	md, err := encodeMetadata(txn.Metadata)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE transactions SET
			account_id = $2, person_id = $3, parent_id = $4, type = $5, amount = $6,
			occurred_at = $7, category_id = $8, cashback_mode = $9,
			cashback_share_percent = $10, cashback_share_fixed = $11,
			tag = $12, note = $13, metadata = $14
		WHERE id = $1
	`, txn.ID, txn.AccountID, nullUUID(txn.PersonID), nullUUID(txn.ParentID), txn.Type,
		txn.Amount, txn.OccurredAt, txn.CategoryID, txn.CashbackMode,
		nullDecimal(txn.CashbackSharePercent), nullDecimal(txn.CashbackShareFixed),
		txn.Tag, sanitizeString(txn.Note), md)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update transaction: %w", storage.ErrNotFound)
	}
	return nil
}

func (s *Storage) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete transaction: %w", storage.ErrNotFound)
	}
	return nil
}

func (s *Storage) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		return nil, notFound(err, "get transaction")
	}
	return txn, nil
}

func (s *Storage) SumSpend(ctx context.Context, accountID uuid.UUID, from, until time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := s.db.QueryRow(ctx, `
		SELECT SUM(ABS(amount))
		FROM transactions
		WHERE account_id = $1 AND type IN ('expense', 'debt')
		  AND occurred_at >= $2 AND occurred_at < $3
	`, accountID, from, until).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum spend: %w", err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// === DebtStorage ===

func (s *Storage) ListDebts(ctx context.Context, personID uuid.UUID) ([]domain.Transaction, error) {
	return s.listByPerson(ctx, personID, domain.TypeDebt)
}

func (s *Storage) ListRepayments(ctx context.Context, personID uuid.UUID) ([]domain.Transaction, error) {
	return s.listByPerson(ctx, personID, domain.TypeRepayment)
}

func (s *Storage) listByPerson(ctx context.Context, personID uuid.UUID, typ domain.TransactionType) ([]domain.Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE person_id = $1 AND type = $2
		ORDER BY occurred_at, id
	`, personID, typ)
	if err != nil {
		return nil, fmt.Errorf("list %s transactions: %w", typ, err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

func (s *Storage) SetMetadata(ctx context.Context, transactionID uuid.UUID, md domain.TransactionMetadata) error {
	raw, err := encodeMetadata(&md)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `UPDATE transactions SET metadata = $2 WHERE id = $1`, transactionID, raw)
	if err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set metadata: %w", storage.ErrNotFound)
	}
	return nil
}

// === CashbackStorage ===

func (s *Storage) UpsertCashbackEntry(ctx context.Context, e domain.CashbackEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO cashback_entries
			(transaction_id, account_id, mode, amount, rate, source, cycle_tag, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transaction_id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			mode = EXCLUDED.mode,
			amount = EXCLUDED.amount,
			rate = EXCLUDED.rate,
			source = EXCLUDED.source,
			cycle_tag = EXCLUDED.cycle_tag,
			computed_at = EXCLUDED.computed_at
	`, e.TransactionID, e.AccountID, e.Mode, e.Amount, e.Rate, e.Source, e.CycleTag, e.ComputedAt)
	if err != nil {
		return fmt.Errorf("upsert cashback entry: %w", err)
	}
	return nil
}

func (s *Storage) DeleteCashbackEntry(ctx context.Context, transactionID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM cashback_entries WHERE transaction_id = $1`, transactionID); err != nil {
		return fmt.Errorf("delete cashback entry: %w", err)
	}
	return nil
}

func (s *Storage) GetCashbackEntry(ctx context.Context, transactionID uuid.UUID) (*domain.CashbackEntry, error) {
	var e domain.CashbackEntry
	err := s.db.QueryRow(ctx, `
		SELECT transaction_id, account_id, mode, amount, rate, source, cycle_tag, computed_at
		FROM cashback_entries WHERE transaction_id = $1
	`, transactionID).Scan(&e.TransactionID, &e.AccountID, &e.Mode, &e.Amount, &e.Rate, &e.Source, &e.CycleTag, &e.ComputedAt)
	if err != nil {
		return nil, notFound(err, "get cashback entry")
	}
	return &e, nil
}

func (s *Storage) ListCashbackEntries(ctx context.Context, accountID uuid.UUID, cycleTag string) ([]domain.CashbackEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT transaction_id, account_id, mode, amount, rate, source, cycle_tag, computed_at
		FROM cashback_entries
		WHERE account_id = $1 AND cycle_tag = $2
		ORDER BY computed_at
	`, accountID, cycleTag)
	if err != nil {
		return nil, fmt.Errorf("list cashback entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.CashbackEntry
	for rows.Next() {
		var e domain.CashbackEntry
		if err := rows.Scan(&e.TransactionID, &e.AccountID, &e.Mode, &e.Amount, &e.Rate, &e.Source, &e.CycleTag, &e.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan cashback entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// === helpers ===

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		txn              domain.Transaction
		personID, parent uuid.NullUUID
		percent, fixed   decimal.NullDecimal
		md               []byte
	)
	err := row.Scan(&txn.ID, &txn.AccountID, &personID, &parent, &txn.Type, &txn.Amount,
		&txn.OccurredAt, &txn.CategoryID, &txn.CashbackMode, &percent, &fixed,
		&txn.Tag, &txn.Note, &md)
	if err != nil {
		return nil, err
	}
	if personID.Valid {
		txn.PersonID = &personID.UUID
	}
	if parent.Valid {
		txn.ParentID = &parent.UUID
	}
	if percent.Valid {
		txn.CashbackSharePercent = &percent.Decimal
	}
	if fixed.Valid {
		txn.CashbackShareFixed = &fixed.Decimal
	}
	if len(md) > 0 {
		var meta domain.TransactionMetadata
		if err := json.Unmarshal(md, &meta); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", txn.ID, err)
		}
		txn.Metadata = &meta
	}
	return &txn, nil
}

func encodeMetadata(md *domain.TransactionMetadata) ([]byte, error) {
	if md == nil {
		return nil, nil
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return raw, nil
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
