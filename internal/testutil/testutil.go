// Package testutil provides fakes and helpers shared by package tests and
// the environment-gated e2e suite.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Context returns a context with a reasonable timeout for tests.
// The cancel function is registered via t.Cleanup.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// UniqueName returns a slice name that will not collide across test runs
// sharing a project.
func UniqueName(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}
