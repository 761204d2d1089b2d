// Package bundle manages the on-disk game bundle tree shared by the lobby
// and developer services. Layout: <root>/<sanitizedName>/<version>/<relPath>.
// The developer service owns all writes; the lobby only reads.
package bundle

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9 _\-]`)

// SanitizeName projects a game's display name onto a filesystem-safe
// directory name: strip everything outside [A-Za-z0-9 _-], trim, replace
// spaces with underscores. Empty results fall back to "unnamed_game".
func SanitizeName(name string) string {
	safe := unsafeChars.ReplaceAllString(name, "")
	safe = strings.TrimSpace(safe)
	safe = strings.ReplaceAll(safe, " ", "_")
	if safe == "" {
		safe = "unnamed_game"
	}
	return safe
}

// Repository is a handle on one bundle tree root.
type Repository struct {
	root string
}

// NewRepository creates the root directory if needed and returns a handle.
func NewRepository(root string) (*Repository, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating bundle root %s: %w", root, err)
	}
	return &Repository{root: root}, nil
}

// Root returns the tree root path.
func (r *Repository) Root() string { return r.root }

// GameDir returns <root>/<sanitize(name)>.
func (r *Repository) GameDir(name string) string {
	return filepath.Join(r.root, SanitizeName(name))
}

// VersionDir returns <root>/<sanitize(name)>/<version>.
func (r *Repository) VersionDir(name, version string) string {
	return filepath.Join(r.GameDir(name), version)
}

// VersionExists reports whether a version directory is present on disk.
func (r *Repository) VersionExists(name, version string) bool {
	info, err := os.Stat(r.VersionDir(name, version))
	return err == nil && info.IsDir()
}

// EnsureVersionDir creates the directory for one (game, version).
func (r *Repository) EnsureVersionDir(name, version string) (string, error) {
	dir := r.VersionDir(name, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating version dir %s: %w", dir, err)
	}
	return dir, nil
}

// RemoveVersion deletes one version directory. Missing directories are not
// an error.
func (r *Repository) RemoveVersion(name, version string) error {
	dir := r.VersionDir(name, version)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing version dir %s: %w", dir, err)
	}
	return nil
}

// RemoveGame deletes the whole bundle tree for one game, every version.
func (r *Repository) RemoveGame(name string) error {
	dir := r.GameDir(name)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing game dir %s: %w", dir, err)
	}
	return nil
}

// WalkVersion returns the sorted relative paths of every regular file under
// one version directory.
func (r *Repository) WalkVersion(name, version string) ([]string, error) {
	dir := r.VersionDir(name, version)
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
