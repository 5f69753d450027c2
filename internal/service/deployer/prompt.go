package deployer

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

var errNoTerminal = errors.New("stdin is not a terminal; set RSS_R_DEPLOY_PASSPHRASE instead")

// promptPassphrase reads a key passphrase from the terminal without echo.
func promptPassphrase(keyPath string) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // File descriptors fit in int.
	if !term.IsTerminal(fd) {
		return "", errNoTerminal
	}

	_, _ = fmt.Fprintf(os.Stderr, "Please enter the passphrase for private key file `%s`: ", keyPath)

	passphrase, err := term.ReadPassword(fd)

	_, _ = fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", err
	}

	return string(passphrase), nil
}
