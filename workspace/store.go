package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
)

// File permission constants
const (
	DirPermission  = 0o755
	FilePermission = 0o644
)

// EntryTypeDirectory is the CreateEntry type that makes a directory; any
// other value creates an empty file.
const EntryTypeDirectory = "directory"

// FileNode is one entry of a project tree. Paths are slash-separated and
// relative to the project root.
type FileNode struct {
	Name        string     `json:"name"`
	IsDirectory bool       `json:"directory"`
	Path        string     `json:"path"`
	Children    []FileNode `json:"children"`
}

// Store keeps every project as a directory under a single root.
type Store struct {
	fs              afero.Fs
	root            string
	archiveExcludes []string
	logger          *zap.Logger
}

// StoreOption defines a functional option for Store
type StoreOption func(*Store)

// WithArchiveExcludes sets the default exclude patterns used by Archive.
func WithArchiveExcludes(patterns []string) StoreOption {
	return func(s *Store) {
		s.archiveExcludes = patterns
	}
}

// NewStore creates a Store rooted at root on the given filesystem. The root is
// made absolute and created if missing.
func NewStore(fsys afero.Fs, root string, logger *zap.Logger, opts ...StoreOption) (*Store, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root %q: %w", root, err)
	}

	if err := fsys.MkdirAll(absRoot, DirPermission); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}

	s := &Store{
		fs:     fsys,
		root:   absRoot,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// NewFromConfig creates a Store on the host filesystem using the workspace
// section of the configuration.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (*Store, error) {
	return NewStore(afero.NewOsFs(), cfg.Workspace.Root, logger,
		WithArchiveExcludes(cfg.Workspace.ArchiveExcludes))
}

// Root returns the absolute workspace root.
func (s *Store) Root() string {
	return s.root
}

// Resolve maps a project id and a project-relative path to an absolute host
// path. An empty relative path resolves to the project root. The project
// directory must exist; the target itself need not. Paths that pass through
// a symbolic link inside the project are rejected with ErrInvalidPath.
func (s *Store) Resolve(projectID, relPath string) (string, error) {
	projectDir, err := s.projectDir(projectID)
	if err != nil {
		return "", err
	}

	clean, err := cleanRelative(relPath)
	if err != nil {
		return "", err
	}

	info, err := s.fs.Stat(projectDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
		}
		return "", fmt.Errorf("failed to stat project %s: %w", projectID, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}

	if clean == "" {
		return projectDir, nil
	}
	if err := s.rejectSymlinks(projectDir, clean); err != nil {
		return "", err
	}
	return filepath.Join(projectDir, clean), nil
}

// rejectSymlinks fails when any existing component of clean below projectDir
// is a symbolic link. Programs run with the project mounted read-write, so a
// link there could point anywhere on the host.
func (s *Store) rejectSymlinks(projectDir, clean string) error {
	lstater, ok := s.fs.(afero.Lstater)
	if !ok {
		return nil
	}

	current := projectDir
	for _, part := range strings.Split(clean, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		info, _, err := lstater.LstatIfPossible(current)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("failed to stat %s: %w", filepath.ToSlash(clean), err)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: symbolic link not allowed: %s", ErrInvalidPath, filepath.ToSlash(clean))
		}
	}
	return nil
}

// CreateProject creates the project directory and writes the starter files
// for language.
func (s *Store) CreateProject(projectID, language string) error {
	projectDir, err := s.projectDir(projectID)
	if err != nil {
		return err
	}

	exists, err := afero.Exists(s.fs, projectDir)
	if err != nil {
		return fmt.Errorf("failed to check project %s: %w", projectID, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrProjectExists, projectID)
	}

	if err := s.fs.MkdirAll(projectDir, DirPermission); err != nil {
		return fmt.Errorf("failed to create project %s: %w", projectID, err)
	}

	for _, file := range templateFor(strings.ToLower(strings.TrimSpace(language))) {
		target := filepath.Join(projectDir, filepath.FromSlash(file.Path))
		if err := s.fs.MkdirAll(filepath.Dir(target), DirPermission); err != nil {
			return fmt.Errorf("failed to create template directory: %w", err)
		}
		if err := afero.WriteFile(s.fs, target, []byte(file.Content), FilePermission); err != nil {
			return fmt.Errorf("failed to write template %s: %w", file.Path, err)
		}
	}

	s.logger.Info("project created",
		zap.String("project_id", projectID),
		zap.String("language", language))

	return nil
}

// Tree returns the project's files and directories, recursively, sorted by
// name. A missing project yields an empty tree.
func (s *Store) Tree(projectID string) ([]FileNode, error) {
	projectDir, err := s.Resolve(projectID, "")
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			return []FileNode{}, nil
		}
		return nil, err
	}
	return s.walk(projectDir, "")
}

func (s *Store) walk(dir, rel string) ([]FileNode, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", rel, err)
	}

	nodes := make([]FileNode, 0, len(entries))
	for _, entry := range entries {
		childRel := entry.Name()
		if rel != "" {
			childRel = rel + "/" + entry.Name()
		}

		node := FileNode{
			Name:        entry.Name(),
			IsDirectory: entry.IsDir(),
			Path:        childRel,
		}
		if entry.IsDir() {
			children, err := s.walk(filepath.Join(dir, entry.Name()), childRel)
			if err != nil {
				return nil, err
			}
			node.Children = children
		}
		nodes = append(nodes, node)
	}

	return nodes, nil
}

// ReadFile returns the content of a file inside the project.
func (s *Store) ReadFile(projectID, relPath string) (string, error) {
	target, err := s.resolveEntry(projectID, relPath)
	if err != nil {
		return "", err
	}

	info, err := s.fs.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrEntryNotFound, relPath)
		}
		return "", fmt.Errorf("failed to stat %s: %w", relPath, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotAFile, relPath)
	}

	data, err := afero.ReadFile(s.fs, target)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", relPath, err)
	}
	return string(data), nil
}

// SaveFile writes content to a file inside the project, creating parent
// directories as needed.
func (s *Store) SaveFile(projectID, relPath, content string) error {
	target, err := s.resolveEntry(projectID, relPath)
	if err != nil {
		return err
	}

	if err := s.fs.MkdirAll(filepath.Dir(target), DirPermission); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}

	if err := afero.WriteFile(s.fs, target, []byte(content), FilePermission); err != nil {
		return fmt.Errorf("failed to save %s: %w", relPath, err)
	}

	s.logger.Debug("file saved",
		zap.String("project_id", projectID),
		zap.String("path", relPath),
		zap.Int("bytes", len(content)))

	return nil
}

// CreateEntry creates an empty file, or a directory when entryType is
// "directory". The entry must not already exist.
func (s *Store) CreateEntry(projectID, relPath, entryType string) error {
	target, err := s.resolveEntry(projectID, relPath)
	if err != nil {
		return err
	}

	exists, err := afero.Exists(s.fs, target)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", relPath, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrEntryExists, relPath)
	}

	if strings.EqualFold(entryType, EntryTypeDirectory) {
		if err := s.fs.MkdirAll(target, DirPermission); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", relPath, err)
		}
		return nil
	}

	if err := s.fs.MkdirAll(filepath.Dir(target), DirPermission); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}
	f, err := s.fs.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, FilePermission)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", relPath, err)
	}
	return f.Close()
}

// resolveEntry resolves a path that must name something below the project
// root, not the root itself.
func (s *Store) resolveEntry(projectID, relPath string) (string, error) {
	clean, err := cleanRelative(relPath)
	if err != nil {
		return "", err
	}
	if clean == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return s.Resolve(projectID, clean)
}

func (s *Store) projectDir(projectID string) (string, error) {
	if err := ValidateProjectID(projectID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, projectID), nil
}

// ValidateProjectID rejects ids that are empty or could address anything other
// than a direct child of the workspace root.
func ValidateProjectID(projectID string) error {
	switch {
	case strings.TrimSpace(projectID) == "":
		return fmt.Errorf("%w: empty project id", ErrInvalidPath)
	case projectID == "." || projectID == "..":
		return fmt.Errorf("%w: project id %q", ErrInvalidPath, projectID)
	case strings.ContainsAny(projectID, `/\`+"\x00"):
		return fmt.Errorf("%w: project id %q", ErrInvalidPath, projectID)
	}
	return nil
}

// cleanRelative normalizes a slash-separated project-relative path. The empty
// string and "." both mean the project root and yield "".
func cleanRelative(relPath string) (string, error) {
	if strings.ContainsRune(relPath, '\x00') {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
	}
	slashed := strings.ReplaceAll(relPath, `\`, "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("%w: absolute path not allowed: %s", ErrInvalidPath, relPath)
	}

	clean := filepath.Clean(filepath.FromSlash(slashed))
	if clean == "." {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes project root: %s", ErrInvalidPath, relPath)
	}
	return clean, nil
}
