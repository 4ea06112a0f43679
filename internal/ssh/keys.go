package ssh

import (
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// ReadPrivateKey loads a PEM-encoded private key from disk and checks it can be
// used for authentication.
func ReadPrivateKey(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("private key path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read private key: %w", err)
	}

	if _, err := ssh.ParsePrivateKey(data); err != nil {
		return nil, fmt.Errorf("could not parse private key %s: %w", path, err)
	}

	return data, nil
}
