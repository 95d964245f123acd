package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const oneType = `
types:
  - class_name: string
    display_name: String
    storage_kind: text
`

const twoTypes = oneType + `
  - class_name: boolean
    display_name: Boolean
    storage_kind: boolean
`

func TestWatchTypesFile_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.yaml")
	if err := os.WriteFile(path, []byte(oneType), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := LoadTypesFile(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloads := make(chan error, 16)
	if err := WatchTypesFile(ctx, path, reg, func(err error) { reloads <- err }); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte(twoTypes), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, reloads, func() bool { _, ok := reg.Resolve("boolean"); return ok })

	// A broken catalog keeps the previous one.
	if err := os.WriteFile(path, []byte("types: [{class_name: x, bogus: 1}]"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-reloads:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after broken write")
	}
	if _, ok := reg.Resolve("boolean"); !ok {
		t.Fatal("expected previous catalog to survive a broken reload")
	}
}

func waitFor(t *testing.T, reloads <-chan error, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-reloads:
		case <-deadline:
			t.Fatal("timed out waiting for catalog reload")
		}
	}
}

func TestReloadFile_MissingFile(t *testing.T) {
	reg := DefaultTypes()
	if err := reg.ReloadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, ok := reg.Resolve("string"); !ok {
		t.Fatal("expected catalog unchanged")
	}
}
