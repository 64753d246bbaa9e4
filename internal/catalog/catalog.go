package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nhle/mailcheck/internal/credential"
	"github.com/nhle/mailcheck/internal/model"
	"github.com/nhle/mailcheck/internal/store"
)

// ErrInvalidAccount is returned when an address or secret is unusable.
var ErrInvalidAccount = errors.New("invalid account")

// Catalog resolves accounts to the credentials needed to poll them. The
// address and label live in the store, the secret in the vault.
type Catalog struct {
	store store.Store
	vault *credential.Vault
	log   zerolog.Logger
}

// New creates a Catalog.
func New(s store.Store, v *credential.Vault, log zerolog.Logger) *Catalog {
	return &Catalog{store: s, vault: v, log: log}
}

// Add validates and stores a new account. Surrounding whitespace is
// trimmed from every field.
func (c *Catalog) Add(
	ctx context.Context,
	address, secret, label string,
) (model.Account, error) {
	address = strings.TrimSpace(address)
	secret = strings.TrimSpace(secret)
	label = strings.TrimSpace(label)

	if err := validate(address, secret); err != nil {
		return model.Account{}, err
	}

	acc, err := c.store.CreateAccount(ctx, model.Account{
		Address: address,
		Label:   label,
	})
	if err != nil {
		return model.Account{}, err
	}

	if err := c.vault.Set(credential.AccountKey(acc.ID), secret); err != nil {
		if delErr := c.store.DeleteAccount(ctx, acc.ID); delErr != nil {
			c.log.Error().Err(delErr).Str("id", acc.ID).Msg("Rolling back account failed")
		}
		return model.Account{}, fmt.Errorf("storing secret for %s: %w", address, err)
	}

	acc.Secret = secret
	c.log.Info().Str("id", acc.ID).Str("address", address).Msg("Account added")
	return acc, nil
}

// List returns every account without secrets, newest first.
func (c *Catalog) List(ctx context.Context) ([]model.Account, error) {
	return c.store.GetAccounts(ctx)
}

// Get returns the account with its secret. An unknown id yields
// store.ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id string) (model.Account, error) {
	acc, err := c.store.GetAccountByID(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	return c.withSecret(*acc)
}

// Lookup resolves an account by id or, failing that, by address.
func (c *Catalog) Lookup(ctx context.Context, ref string) (model.Account, error) {
	acc, err := c.Get(ctx, ref)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return acc, err
	}

	byAddr, err := c.store.GetAccountByAddress(ctx, strings.TrimSpace(ref))
	if err != nil {
		return model.Account{}, err
	}
	return c.withSecret(*byAddr)
}

// Delete removes an account and its secret.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	if err := c.vault.Delete(credential.AccountKey(id)); err != nil {
		c.log.Warn().Err(err).Str("id", id).Msg("Secret left behind for deleted account")
	}
	c.log.Info().Str("id", id).Msg("Account deleted")
	return nil
}

// Export writes a snapshot of the account database to path. Secrets are
// not part of it.
func (c *Catalog) Export(ctx context.Context, path string) error {
	return c.store.Backup(ctx, path)
}

func (c *Catalog) withSecret(acc model.Account) (model.Account, error) {
	secret, err := c.vault.Get(credential.AccountKey(acc.ID))
	if err != nil {
		return model.Account{}, fmt.Errorf("resolving secret for %s: %w", acc.Address, err)
	}
	acc.Secret = secret
	return acc, nil
}

func validate(address, secret string) error {
	if address == "" || secret == "" {
		return fmt.Errorf("%w: address and secret are required", ErrInvalidAccount)
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return fmt.Errorf("%w: %q is not a bare email address", ErrInvalidAccount, address)
	}
	return nil
}
