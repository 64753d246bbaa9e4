package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nhle/mailcheck/internal/model"
)

// CreateAccount inserts a new account. If the account has no ID, a new
// UUID is generated. The stored record is returned.
func (s *SQLiteStore) CreateAccount(
	ctx context.Context,
	account model.Account,
) (model.Account, error) {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	account.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, address, label, created_at)
		VALUES (?, ?, ?, ?)`,
		account.ID, account.Address, account.Label, account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Account{}, fmt.Errorf("creating account %s: %w", account.Address, ErrDuplicateAddress)
		}
		return model.Account{}, fmt.Errorf("creating account %s: %w", account.Address, err)
	}

	return account, nil
}

// GetAccounts retrieves every account, newest first.
func (s *SQLiteStore) GetAccounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := s.db.SelectContext(ctx, &accounts, `
		SELECT id, address, label, created_at
		FROM accounts
		ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	return accounts, nil
}

// GetAccountByID retrieves a single account by its ID.
func (s *SQLiteStore) GetAccountByID(
	ctx context.Context,
	id string,
) (*model.Account, error) {
	var account model.Account
	err := s.db.GetContext(ctx, &account, `
		SELECT id, address, label, created_at
		FROM accounts WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("getting account %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting account %s: %w", id, err)
	}
	return &account, nil
}

// GetAccountByAddress retrieves a single account by its address,
// ignoring case.
func (s *SQLiteStore) GetAccountByAddress(
	ctx context.Context,
	address string,
) (*model.Account, error) {
	var account model.Account
	err := s.db.GetContext(ctx, &account, `
		SELECT id, address, label, created_at
		FROM accounts WHERE address = ?`, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("getting account %s: %w", address, ErrNotFound)
		}
		return nil, fmt.Errorf("getting account %s: %w", address, err)
	}
	return &account, nil
}

// DeleteAccount removes an account by ID.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting account %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("deleting account %s: %w", id, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
