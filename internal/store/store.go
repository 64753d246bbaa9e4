package store

import (
	"context"
	"errors"

	"github.com/nhle/mailcheck/internal/model"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")

	// ErrDuplicateAddress is returned when an address is already cataloged.
	ErrDuplicateAddress = errors.New("address already exists")
)

// Store defines the persistence interface for the account catalog.
// Secrets are not part of it; they live in the credential vault.
type Store interface {
	CreateAccount(ctx context.Context, account model.Account) (model.Account, error)
	GetAccounts(ctx context.Context) ([]model.Account, error)
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	GetAccountByAddress(ctx context.Context, address string) (*model.Account, error)
	DeleteAccount(ctx context.Context, id string) error

	// Backup writes a consistent snapshot of the database to path.
	Backup(ctx context.Context, path string) error
}
