package remote

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// ErrPassphraseRequired is returned when a private key is encrypted and no passphrase was available.
var ErrPassphraseRequired = errors.New("private key is encrypted; a passphrase is required")

// LoadSigner loads a private key, decrypting it with passphrase when one is given.
func LoadSigner(path, passphrase string) (ssh.Signer, error) {
	pemBytes, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(pemBytes, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", path, err)
		}

		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(pemBytes)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return nil, fmt.Errorf("%s: %w", path, ErrPassphraseRequired)
	}

	return nil, fmt.Errorf("parse private key %s: %w", path, err)
}
