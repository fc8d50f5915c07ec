package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"agenthq/internal/domain"
)

// Sandbox confines file operations to a workspace directory.
type Sandbox struct {
	root string // absolute, symlink-resolved
}

// NewSandbox opens a sandbox at root, creating the directory if needed.
func NewSandbox(root string) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("eval symlinks for sandbox root: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat sandbox root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root %q is not a directory", resolved)
	}

	return &Sandbox{root: resolved}, nil
}

// Resolve maps requested to an absolute path inside the sandbox. Relative
// paths are taken from the sandbox root. Symlinks are followed before the
// containment check; a path that does not exist yet is checked via its parent.
func (s *Sandbox) Resolve(requested string) (string, error) {
	p := requested
	if p == "" {
		p = "."
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	p = filepath.Clean(p)

	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		parent, perr := filepath.EvalSymlinks(filepath.Dir(p))
		if perr != nil {
			return "", domain.NewDomainError("Sandbox.Resolve", domain.ErrPathOutsideSandbox, perr.Error())
		}
		resolved = filepath.Join(parent, filepath.Base(p))
	}

	if !s.contains(resolved) {
		return "", domain.NewDomainError("Sandbox.Resolve", domain.ErrPathOutsideSandbox,
			fmt.Sprintf("%q resolves outside %q", requested, s.root))
	}
	return resolved, nil
}

// Root returns the sandbox root directory.
func (s *Sandbox) Root() string { return s.root }

func (s *Sandbox) contains(path string) bool {
	return path == s.root || strings.HasPrefix(path, s.root+string(os.PathSeparator))
}
