package agentloop

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Workspace is the single binding from a session to the directory root all
// relative file and process operations are scoped to. It is created once at
// session setup and immutable afterward; rebinding after tools have executed
// is not supported. Sessions never share a Workspace, so each session's tool
// calls run against its own directory.
type Workspace struct {
	root      string
	createdAt time.Time
}

// NewWorkspace binds a workspace to the given directory. An empty root binds
// to the current working directory. The root is made absolute so Resolve is
// a pure function of its input.
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("workspace: %w", err)
		}
		root = cwd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return &Workspace{
		root:      filepath.Clean(abs),
		createdAt: time.Now(),
	}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// CreatedAt returns when the binding was created.
func (w *Workspace) CreatedAt() time.Time { return w.createdAt }

// Resolve maps a path into the workspace: relative paths join the root,
// absolute paths pass through unchanged (an explicit escape hatch, not an
// error). No caching, so concurrent callers observing the same binding get
// consistent results.
func (w *Workspace) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(w.root, path)
}
