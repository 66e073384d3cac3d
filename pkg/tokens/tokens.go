// Package tokens supplies the bearer credentials the orchestrator client
// attaches to every request. Refresh is deliberately out of scope: the
// testbed's credential manager owns the refresh flow, and weft just reads
// what it wrote.
package tokens

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/weft-testbed/weft/pkg/util"
)

// Provider yields a bearer token for orchestrator requests.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Static wraps a fixed token string, for tests and CI environments that
// inject credentials through the environment.
type Static string

func (s Static) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("no token configured")
	}
	return string(s), nil
}

// FileProvider reads the credential manager's token file, a JSON document
// holding the identity token. The file is re-read only when its mtime
// changes, so a refresh by the credential manager is picked up without
// re-parsing on every request.
type FileProvider struct {
	Path string

	mu     sync.Mutex
	token  string
	mtime  time.Time
	loaded bool
}

// NewFileProvider returns a provider reading the token file at path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path}
}

// tokenFile is the credential manager's on-disk shape.
type tokenFile struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

// Token returns the identity token, re-reading the file if it changed.
// An expired token is an error: weft never refreshes, the user's
// credential manager does.
func (p *FileProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := os.Stat(p.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("token file %s does not exist, fetch a token first: %w", p.Path, util.ErrNotFound)
		}
		return "", fmt.Errorf("stat token file: %w", err)
	}

	if !p.loaded || !info.ModTime().Equal(p.mtime) {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			return "", fmt.Errorf("read token file: %w", err)
		}
		var tf tokenFile
		if err := json.Unmarshal(data, &tf); err != nil {
			return "", fmt.Errorf("parse token file %s: %w", p.Path, err)
		}
		if tf.IDToken == "" {
			return "", fmt.Errorf("token file %s has no id_token", p.Path)
		}
		p.token = tf.IDToken
		p.mtime = info.ModTime()
		p.loaded = true
	}

	if exp, ok := jwtExpiry(p.token); ok && time.Now().After(exp) {
		return "", fmt.Errorf("token in %s expired at %s, refresh it and retry",
			p.Path, exp.Format(time.RFC3339))
	}
	return p.token, nil
}

// jwtExpiry extracts the exp claim from a JWT without verifying it.
// Verification belongs to the orchestrator; the client only checks expiry
// to fail fast with a useful message. Non-JWT tokens pass through.
func jwtExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, false
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == 0 {
		return time.Time{}, false
	}
	return time.Unix(claims.Exp, 0), true
}
