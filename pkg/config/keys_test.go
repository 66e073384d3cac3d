package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

func keyConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	return &Config{
		SlicePrivateKeyFile: filepath.Join(dir, "slice_key"),
		SlicePublicKeyFile:  filepath.Join(dir, "slice_key.pub"),
	}
}

func TestEnsureSliceKeys_GeneratesOnFirstUse(t *testing.T) {
	c := keyConfig(t)

	pub, err := c.EnsureSliceKeys()
	if err != nil {
		t.Fatalf("EnsureSliceKeys: %v", err)
	}
	if !strings.HasPrefix(pub, "ssh-ed25519 ") {
		t.Errorf("public key = %q, want ssh-ed25519 line", pub)
	}

	info, err := os.Stat(c.SlicePrivateKeyFile)
	if err != nil {
		t.Fatalf("private key not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("private key mode = %o, want 0600", perm)
	}

	data, err := os.ReadFile(c.SlicePrivateKeyFile)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ssh.ParsePrivateKey(data); err != nil {
		t.Errorf("generated key does not parse: %v", err)
	}

	pubData, err := os.ReadFile(c.SlicePublicKeyFile)
	if err != nil {
		t.Fatalf("public key not written: %v", err)
	}
	if !strings.HasPrefix(string(pubData), "ssh-ed25519 ") {
		t.Errorf("public key file = %q", pubData)
	}
}

func TestEnsureSliceKeys_Idempotent(t *testing.T) {
	c := keyConfig(t)

	first, err := c.EnsureSliceKeys()
	if err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(c.SlicePrivateKeyFile)

	second, err := c.EnsureSliceKeys()
	if err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(c.SlicePrivateKeyFile)

	if first != second {
		t.Errorf("public key changed between calls: %q vs %q", first, second)
	}
	if string(before) != string(after) {
		t.Error("private key file rewritten on second call")
	}
}

func TestEnsureSliceKeys_DerivesWithoutPubFile(t *testing.T) {
	c := keyConfig(t)

	first, err := c.EnsureSliceKeys()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(c.SlicePublicKeyFile); err != nil {
		t.Fatal(err)
	}

	derived, err := c.EnsureSliceKeys()
	if err != nil {
		t.Fatalf("EnsureSliceKeys without pub file: %v", err)
	}
	if derived != first {
		t.Errorf("derived key %q != original %q", derived, first)
	}
}

func TestEnsureSliceKeys_Passphrase(t *testing.T) {
	c := keyConfig(t)
	c.SliceKeyPassphrase = "hunter2"

	pub, err := c.EnsureSliceKeys()
	if err != nil {
		t.Fatalf("EnsureSliceKeys: %v", err)
	}

	data, err := os.ReadFile(c.SlicePrivateKeyFile)
	if err != nil {
		t.Fatal(err)
	}
	_, err = ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		t.Errorf("key should be encrypted, parse error = %v", err)
	}
	if _, err := ssh.ParsePrivateKeyWithPassphrase(data, []byte("hunter2")); err != nil {
		t.Errorf("decrypt with passphrase: %v", err)
	}

	// Deriving from the encrypted private key uses the passphrase.
	if err := os.Remove(c.SlicePublicKeyFile); err != nil {
		t.Fatal(err)
	}
	derived, err := c.EnsureSliceKeys()
	if err != nil {
		t.Fatalf("derive from encrypted key: %v", err)
	}
	if derived != pub {
		t.Errorf("derived %q != original %q", derived, pub)
	}
}

func TestEnsureSliceKeys_NoPath(t *testing.T) {
	c := &Config{}
	if _, err := c.EnsureSliceKeys(); err == nil {
		t.Fatal("expected error without a key path")
	}
}
