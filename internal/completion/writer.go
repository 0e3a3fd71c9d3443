package completion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/runctl/internal/errors"
)

// DefaultAllowedPatterns are the relative paths run output may be written
// to when no allowlist is configured.
var DefaultAllowedPatterns = []string{"**.md", "**.txt", "**.json"}

// FileWriter persists run output inside a project.
type FileWriter interface {
	// WriteFile writes content to relPath under the project's root.
	// rootHint, when non-empty, overrides the root registered for projectID.
	WriteFile(ctx context.Context, projectID, relPath, content, rootHint string) (string, error)
}

// ProjectWriter is a FileWriter that resolves project roots from a static
// map and refuses any path outside the root or the allowlist.
type ProjectWriter struct {
	fs    afero.Fs
	allow []glob.Glob

	mu    sync.RWMutex
	roots map[string]string
}

// NewProjectWriter compiles patterns (DefaultAllowedPatterns when empty)
// and returns a writer over fs.
func NewProjectWriter(fs afero.Fs, roots map[string]string, patterns []string) (*ProjectWriter, error) {
	if len(patterns) == 0 {
		patterns = DefaultAllowedPatterns
	}
	allow := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("invalid output pattern %q", p)).
				WithField("output.allowed_patterns").WithCause(err)
		}
		allow = append(allow, g)
	}
	copied := make(map[string]string, len(roots))
	for id, root := range roots {
		copied[id] = root
	}
	return &ProjectWriter{fs: fs, allow: allow, roots: copied}, nil
}

// SetRoot registers or replaces a project's root directory.
func (w *ProjectWriter) SetRoot(projectID, root string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.roots[projectID] = root
}

func (w *ProjectWriter) root(projectID, hint string) (string, error) {
	if hint != "" {
		return hint, nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if root, ok := w.roots[projectID]; ok && root != "" {
		return root, nil
	}
	return "", errors.NewNotFoundError("project", projectID)
}

// cleanRel normalizes relPath and rejects anything that escapes the root.
func cleanRel(relPath string) (string, error) {
	if relPath == "" || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("%w: %q", errors.ErrPathNotAllowed, relPath)
	}
	rel := filepath.ToSlash(filepath.Clean(relPath))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %q", errors.ErrPathNotAllowed, relPath)
	}
	return rel, nil
}

// WriteFile implements FileWriter. The file is written to a temp sibling
// and renamed into place so readers never see a partial document.
func (w *ProjectWriter) WriteFile(ctx context.Context, projectID, relPath, content, rootHint string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel, err := cleanRel(relPath)
	if err != nil {
		return "", err
	}
	if !w.allowed(rel) {
		return "", fmt.Errorf("%w: %q does not match the output allowlist", errors.ErrPathNotAllowed, rel)
	}
	root, err := w.root(projectID, rootHint)
	if err != nil {
		return "", err
	}

	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := w.fs.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", errors.Wrapf(err, "create directory for %s", rel)
	}
	tmp := full + ".tmp"
	if err := afero.WriteFile(w.fs, tmp, []byte(content), 0644); err != nil {
		return "", errors.Wrapf(err, "write %s", rel)
	}
	if err := w.fs.Rename(tmp, full); err != nil {
		_ = w.fs.Remove(tmp)
		return "", errors.Wrapf(err, "rename %s into place", rel)
	}
	return full, nil
}

func (w *ProjectWriter) allowed(rel string) bool {
	for _, g := range w.allow {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// ReadFile reads a file relative to a project root, with the same path
// rules as WriteFile except the allowlist.
func (w *ProjectWriter) ReadFile(projectID, relPath, rootHint string) ([]byte, error) {
	rel, err := cleanRel(relPath)
	if err != nil {
		return nil, err
	}
	root, err := w.root(projectID, rootHint)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(w.fs, filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("file", rel).WithCause(err)
		}
		return nil, err
	}
	return data, nil
}
