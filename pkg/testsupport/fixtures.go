// Package testsupport holds fixture and golden-file helpers shared by the
// package tests.
package testsupport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-urlform/internal/loader"
	"github.com/goliatone/go-urlform/pkg/artifact"
	"github.com/goliatone/go-urlform/pkg/source"
)

// MustBuild runs every builder phase over the definition at path and fails
// the test unless the builder ends up Ready.
func MustBuild(t *testing.T, path string, opts ...artifact.Option) *artifact.Builder {
	t.Helper()

	b, err := Build(path, opts...)
	if err != nil {
		t.Fatalf("build %s: %v", path, err)
	}
	return b
}

// Build is MustBuild for callers managing setup outside of *testing.T.
func Build(path string, opts ...artifact.Option) (*artifact.Builder, error) {
	if path == "" {
		return nil, errors.New("testsupport: definition path is required")
	}
	resolver := source.NewResolver(loader.New(source.NewLoaderOptions()))
	b := artifact.New(append([]artifact.Option{artifact.WithResolver(resolver)}, opts...)...)
	if err := b.Build(context.Background(), source.FromFile(path), nil); err != nil {
		return nil, fmt.Errorf("testsupport: %w", err)
	}
	if b.State() != artifact.Ready {
		return nil, fmt.Errorf("testsupport: builder is %s, not ready", b.State())
	}
	return b, nil
}

// CompareGolden diffs got against the golden file at path, ignoring a
// trailing newline. With UPDATE_GOLDENS set the file is rewritten instead.
func CompareGolden(t *testing.T, path string, got []byte) string {
	t.Helper()
	if WriteMaybeGolden(t, path, got) {
		return ""
	}
	want := MustReadGoldenString(t, path)
	return cmp.Diff(strings.TrimRight(want, "\n"), strings.TrimRight(string(got), "\n"))
}

// MustReadGoldenString reads a golden file.
func MustReadGoldenString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	return string(data)
}

// WriteMaybeGolden updates a golden file when UPDATE_GOLDENS is set. Returns
// true if the golden was written (test should exit early).
func WriteMaybeGolden(t *testing.T, path string, data []byte) bool {
	t.Helper()
	if os.Getenv("UPDATE_GOLDENS") == "" {
		return false
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir golden dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
	return true
}
