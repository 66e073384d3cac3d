package bastion

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// LoadSigner parses the private key at path, decrypting it with passphrase
// when needed.
func LoadSigner(path, passphrase string) (ssh.Signer, error) {
	if path == "" {
		return nil, fmt.Errorf("no key path given")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		if passphrase == "" {
			return nil, fmt.Errorf("key %s is encrypted and no passphrase was given", path)
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("decrypt key %s: %w", path, err)
		}
		return signer, nil
	}
	return nil, fmt.Errorf("parse key %s: %w", path, err)
}
