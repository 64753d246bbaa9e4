package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailcheck/internal/catalog"
	"github.com/nhle/mailcheck/internal/credential"
	"github.com/nhle/mailcheck/internal/store"
	"github.com/nhle/mailcheck/tests/testutil"
)

func newCatalog(t *testing.T) (*catalog.Catalog, *credential.Vault) {
	t.Helper()
	v := testutil.NewTestVault(t)
	return catalog.New(testutil.NewTestStore(t), v, zerolog.Nop()), v
}

func TestAddAndGet(t *testing.T) {
	c, v := newCatalog(t)
	ctx := context.Background()

	acc, err := c.Add(ctx, "  user@example.com ", " validpass ", " main ")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", acc.Address)
	assert.Equal(t, "main", acc.Label)

	secret, err := v.Get(credential.AccountKey(acc.ID))
	require.NoError(t, err)
	assert.Equal(t, "validpass", secret)

	got, err := c.Get(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", got.Address)
	assert.Equal(t, "validpass", got.Secret)
}

func TestAddRejectsInvalid(t *testing.T) {
	c, _ := newCatalog(t)

	tests := []struct {
		name, address, secret string
	}{
		{"missing address", "", "pw"},
		{"missing secret", "user@example.com", "  "},
		{"not an address", "not-an-address", "pw"},
		{"display name", "User <user@example.com>", "pw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Add(context.Background(), tt.address, tt.secret, "")
			assert.ErrorIs(t, err, catalog.ErrInvalidAccount)
		})
	}
}

func TestAddDuplicate(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	_, err := c.Add(ctx, "user@example.com", "pw", "")
	require.NoError(t, err)

	_, err = c.Add(ctx, "user@example.com", "other", "")
	assert.ErrorIs(t, err, store.ErrDuplicateAddress)
}

func TestGetUnknown(t *testing.T) {
	c, _ := newCatalog(t)
	_, err := c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLookupByAddress(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	acc, err := c.Add(ctx, "user@example.com", "pw", "")
	require.NoError(t, err)

	byID, err := c.Lookup(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, byID.ID)

	byAddr, err := c.Lookup(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, byAddr.ID)
	assert.Equal(t, "pw", byAddr.Secret)

	_, err = c.Lookup(ctx, "other@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteRemovesSecret(t *testing.T) {
	c, v := newCatalog(t)
	ctx := context.Background()

	acc, err := c.Add(ctx, "user@example.com", "pw", "")
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, acc.ID))

	_, err = v.Get(credential.AccountKey(acc.ID))
	assert.ErrorIs(t, err, credential.ErrNotFound)

	accounts, err := c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	assert.ErrorIs(t, c.Delete(ctx, acc.ID), store.ErrNotFound)
}

func TestExport(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	_, err := c.Add(ctx, "user@example.com", "pw", "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "accounts.db")
	require.NoError(t, c.Export(ctx, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestParseImport(t *testing.T) {
	input := strings.Join([]string{
		"a@example.com:abcd efgh ijkl mnop",
		"",
		"   ",
		"no colon here",
		"b@example.com : secret : personal",
		"c@example.com:pw:label:with:colons",
	}, "\n")

	entries, err := catalog.ParseImport(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []catalog.Entry{
		{Line: 1, Address: "a@example.com", Secret: "abcd efgh ijkl mnop"},
		{Line: 5, Address: "b@example.com", Secret: "secret", Label: "personal"},
		{Line: 6, Address: "c@example.com", Secret: "pw", Label: "label:with:colons"},
	}, entries)
}

func TestImport(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	_, err := c.Add(ctx, "existing@example.com", "pw", "")
	require.NoError(t, err)

	input := strings.Join([]string{
		"new1@example.com:pw1",
		"existing@example.com:pw2",
		"broken:",
		"new2@example.com:pw3:work",
		"new1@example.com:again",
	}, "\n")

	report, err := c.Import(ctx, strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 2, report.Skipped)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, 3, report.Failed[0].Line)

	accounts, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 3)
}

func TestImportEntriesReportsProgress(t *testing.T) {
	c, _ := newCatalog(t)

	entries := []catalog.Entry{
		{Line: 1, Address: "a@example.com", Secret: "pw"},
		{Line: 2, Address: "b@example.com", Secret: "pw"},
	}
	var seen []int
	report, err := c.ImportEntries(context.Background(), entries, func(e catalog.Entry) {
		seen = append(seen, e.Line)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestImportFileMissing(t *testing.T) {
	c, _ := newCatalog(t)

	report, err := c.ImportFile(context.Background(), filepath.Join(t.TempDir(), "boites.txt"))
	require.NoError(t, err)
	assert.Zero(t, report.Added)
}

func TestImportFile(t *testing.T) {
	c, _ := newCatalog(t)
	path := filepath.Join(t.TempDir(), "boites.txt")
	require.NoError(t, os.WriteFile(path, []byte("user@example.com:validpass\n"), 0o600))

	report, err := c.ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
}
