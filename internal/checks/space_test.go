package checks

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureFreeSpace(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{"a", "b"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte("tiny"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("small backup fits", func(t *testing.T) {
		if err := EnsureFreeSpace(t.TempDir(), []string{src}, 0); err != nil {
			t.Fatalf("EnsureFreeSpace() = %v, want nil", err)
		}
	})

	t.Run("missing source", func(t *testing.T) {
		if err := EnsureFreeSpace(t.TempDir(), []string{filepath.Join(src, "nope")}, 0); err == nil {
			t.Fatal("expected error for missing source")
		}
	})

	t.Run("missing destination", func(t *testing.T) {
		if err := EnsureFreeSpace("/nonexistent/dest", []string{src}, 0); err == nil {
			t.Fatal("expected error for missing destination")
		}
	})

	t.Run("impossible free percentage", func(t *testing.T) {
		// No filesystem is 100% free after a write.
		if err := EnsureFreeSpace(t.TempDir(), []string{src}, 100); err == nil {
			t.Fatal("expected error for unreachable free-space floor")
		}
	})
}

func TestTreeSize(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a"), make([]byte, 100), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "b"), make([]byte, 50), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := treeSize(root)
	if err != nil {
		t.Fatal(err)
	}
	if got != 150 {
		t.Errorf("treeSize() = %d, want 150", got)
	}
}
