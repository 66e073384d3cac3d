package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/weft-testbed/weft/pkg/util"
)

// EnsureSliceKeys loads the slice keypair, generating an ed25519 pair on
// first use. The returned string is the public key in authorized_keys form,
// which submission installs on every node in the slice.
func (c *Config) EnsureSliceKeys() (string, error) {
	if c.SlicePrivateKeyFile == "" {
		return "", fmt.Errorf("slice private key path not configured")
	}

	if _, err := os.Stat(c.SlicePrivateKeyFile); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		if err := generateSliceKey(c.SlicePrivateKeyFile, c.SlicePublicKeyFile, c.SliceKeyPassphrase); err != nil {
			return "", err
		}
	}
	return c.slicePublicKey()
}

// slicePublicKey returns the authorized_keys line for the slice keypair,
// from the public key file when present, derived from the private key
// otherwise.
func (c *Config) slicePublicKey() (string, error) {
	if c.SlicePublicKeyFile != "" {
		if data, err := os.ReadFile(c.SlicePublicKeyFile); err == nil {
			pk, _, _, _, err := ssh.ParseAuthorizedKey(data)
			if err != nil {
				return "", fmt.Errorf("parse %s: %w", c.SlicePublicKeyFile, err)
			}
			return authorizedLine(pk), nil
		}
	}

	data, err := os.ReadFile(c.SlicePrivateKeyFile)
	if err != nil {
		return "", err
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if !errors.As(err, &missing) {
			return "", fmt.Errorf("parse %s: %w", c.SlicePrivateKeyFile, err)
		}
		if c.SliceKeyPassphrase == "" {
			return "", fmt.Errorf("slice key %s is encrypted and no passphrase is configured", c.SlicePrivateKeyFile)
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(c.SliceKeyPassphrase))
		if err != nil {
			return "", fmt.Errorf("decrypt %s: %w", c.SlicePrivateKeyFile, err)
		}
	}
	return authorizedLine(signer.PublicKey()), nil
}

func generateSliceKey(privPath, pubPath, passphrase string) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate slice key: %w", err)
	}

	var block *pem.Block
	if passphrase != "" {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "weft slice key", []byte(passphrase))
	} else {
		block, err = ssh.MarshalPrivateKey(priv, "weft slice key")
	}
	if err != nil {
		return fmt.Errorf("encode slice key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(privPath), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(privPath, pem.EncodeToMemory(block), 0600); err != nil {
		return err
	}

	if pubPath != "" {
		sshPub, err := ssh.NewPublicKey(pub)
		if err != nil {
			return fmt.Errorf("encode slice public key: %w", err)
		}
		if err := os.WriteFile(pubPath, ssh.MarshalAuthorizedKey(sshPub), 0644); err != nil {
			return err
		}
	}

	util.Infof("generated slice keypair at %s", privPath)
	return nil
}

func authorizedLine(pk ssh.PublicKey) string {
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pk)))
}
