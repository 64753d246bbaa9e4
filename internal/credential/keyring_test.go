package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultRoundTrip(t *testing.T) {
	v := NewVault(keyring.NewArrayKeyring(nil))

	key := AccountKey("42")
	assert.Equal(t, "account-42", key)

	require.NoError(t, v.Set(key, "abcd efgh ijkl mnop"))

	got, err := v.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "abcd efgh ijkl mnop", got)

	require.NoError(t, v.Delete(key))

	_, err = v.Get(key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVaultDeleteMissing(t *testing.T) {
	v := NewVault(keyring.NewArrayKeyring(nil))
	assert.NoError(t, v.Delete(AccountKey("missing")))
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(Options{Backends: []string{"floppy"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floppy")
}

func TestOpenFileBackendUsesConfiguredPassword(t *testing.T) {
	dir := t.TempDir()

	v, err := Open(Options{Backends: []string{"file"}, FileDir: dir, FilePassword: "first"})
	require.NoError(t, err)
	require.NoError(t, v.Set(AccountKey("1"), "validpass"))

	same, err := Open(Options{Backends: []string{"file"}, FileDir: dir, FilePassword: "first"})
	require.NoError(t, err)
	got, err := same.Get(AccountKey("1"))
	require.NoError(t, err)
	assert.Equal(t, "validpass", got)

	other, err := Open(Options{Backends: []string{"file"}, FileDir: dir, FilePassword: "second"})
	require.NoError(t, err)
	_, err = other.Get(AccountKey("1"))
	assert.Error(t, err)
}

func TestFilePasswordFunc(t *testing.T) {
	got, err := filePasswordFunc("configured")("prompt")
	require.NoError(t, err)
	assert.Equal(t, "configured", got)
}
