package agentloop

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWorkspaceResolveRelative(t *testing.T) {
	dir := t.TempDir()
	ws, err := NewWorkspace(dir)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}

	got := ws.Resolve("sub/file.txt")
	want := filepath.Join(dir, "sub", "file.txt")
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestWorkspaceResolveAbsolutePassesThrough(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}

	abs := "/etc/hosts"
	if got := ws.Resolve(abs); got != abs {
		t.Errorf("Resolve(%q) = %q, absolute paths should pass through", abs, got)
	}
}

func TestWorkspaceResolveIsPure(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}

	first := ws.Resolve("a/b.txt")
	for i := 0; i < 10; i++ {
		if got := ws.Resolve("a/b.txt"); got != first {
			t.Fatalf("Resolve changed between calls: %q vs %q", got, first)
		}
	}
}

func TestWorkspaceEmptyRootBindsCwd(t *testing.T) {
	ws, err := NewWorkspace("")
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if ws.Root() != filepath.Clean(cwd) {
		t.Errorf("Root = %q, want cwd %q", ws.Root(), cwd)
	}
}

func TestWorkspaceRootIsCleaned(t *testing.T) {
	dir := t.TempDir()
	ws, err := NewWorkspace(dir + string(filepath.Separator) + "." + string(filepath.Separator))
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	if ws.Root() != dir {
		t.Errorf("Root = %q, want cleaned %q", ws.Root(), dir)
	}
}
