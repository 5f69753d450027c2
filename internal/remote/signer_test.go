package remote

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rss-r/deploy/internal/remote/remotetest"
)

// TestLoadSigner_FileNotFound reports unreadable key files.
func TestLoadSigner_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := LoadSigner(filepath.Join(t.TempDir(), "missing_key"), "")
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestLoadSigner_Plain loads an unencrypted key and rejects a stray passphrase.
func TestLoadSigner_Plain(t *testing.T) {
	t.Parallel()

	keyPath, pub := remotetest.WriteKey(t, t.TempDir(), "")

	signer, err := LoadSigner(keyPath, "")
	require.NoError(t, err)
	require.Equal(t, pub.Marshal(), signer.PublicKey().Marshal())

	_, err = LoadSigner(keyPath, "pass")
	require.Error(t, err)
}

// TestLoadSigner_Encrypted requires the passphrase for encrypted keys.
func TestLoadSigner_Encrypted(t *testing.T) {
	t.Parallel()

	keyPath, pub := remotetest.WriteKey(t, t.TempDir(), "pp")

	_, err := LoadSigner(keyPath, "")
	require.ErrorIs(t, err, ErrPassphraseRequired)

	_, err = LoadSigner(keyPath, "wrong")
	require.Error(t, err)

	signer, err := LoadSigner(keyPath, "pp")
	require.NoError(t, err)
	require.Equal(t, pub.Marshal(), signer.PublicKey().Marshal())
}

// TestLoadSigner_Garbage rejects files that are not keys.
func TestLoadSigner_Garbage(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(p, []byte("not a key"), 0o600))

	_, err := LoadSigner(p, "")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrPassphraseRequired)
}
