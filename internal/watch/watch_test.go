package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestIsDocument(t *testing.T) {
	cases := map[string]bool{
		"forms/urlform.yaml": true,
		"pixi.schema.json":   true,
		"pyproject.toml":     true,
		"notes.md":           false,
		".urlform.yaml.swp":  false,
		"urlform.yaml~":      false,
		".#urlform.yaml":     false,
		"dir/ui.schema.yml":  true,
	}
	for path, want := range cases {
		if got := IsDocument(path); got != want {
			t.Fatalf("IsDocument(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestRunDebouncesBatches(t *testing.T) {
	dir := t.TempDir()
	def := filepath.Join(dir, "urlform.yaml")
	if err := os.WriteFile(def, []byte("forms: {}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches := make(chan []string, 4)
	done := make(chan error, 1)
	w := New([]string{def}, WithDebounce(300*time.Millisecond))
	go func() {
		done <- w.Run(ctx, func(_ context.Context, changed []string) error {
			batches <- changed
			return nil
		})
	}()

	// Give the watcher time to register the directory.
	time.Sleep(200 * time.Millisecond)
	for _, name := range []string{"urlform.yaml", "pixi.schema.json", "notes.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	select {
	case got := <-batches:
		want := []string{filepath.Join(dir, "pixi.schema.json"), filepath.Join(dir, "urlform.yaml")}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("batch mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher did not stop")
	}
}

func TestRunMissingPath(t *testing.T) {
	w := New([]string{filepath.Join(t.TempDir(), "missing.yaml")})
	if err := w.Run(context.Background(), func(context.Context, []string) error { return nil }); err == nil {
		t.Fatalf("expected an error for a missing path")
	}
}
