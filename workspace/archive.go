package workspace

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Archive packs the project into a tar.gz. Entries matching the store's
// default exclude patterns, plus any extra patterns, are skipped.
//
// A pattern ending in "/" names a directory and excludes everything below
// it; any other pattern is matched against the file's base name. Symbolic
// links are never archived.
func (s *Store) Archive(projectID string, extraExcludes ...string) ([]byte, error) {
	projectDir, err := s.Resolve(projectID, "")
	if err != nil {
		return nil, err
	}

	excludes := append(append([]string{}, s.archiveExcludes...), extraExcludes...)

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzipWriter)

	err = afero.Walk(s.fs, projectDir, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(projectDir, file)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		// Links are left out, as Resolve refuses to follow them.
		if fi.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		if shouldExclude(relPath, fi.IsDir(), excludes) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		header, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		header.Name = relPath
		if fi.IsDir() {
			header.Name += "/"
		}

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if !fi.Mode().IsRegular() {
			return nil
		}

		data, err := s.fs.Open(file)
		if err != nil {
			return err
		}
		defer data.Close()

		_, err = io.Copy(tarWriter, data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to archive project %s: %w", projectID, err)
	}

	if err := tarWriter.Close(); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}

	s.logger.Debug("project archived",
		zap.String("project_id", projectID),
		zap.Int("bytes", buf.Len()))

	return buf.Bytes(), nil
}

// shouldExclude reports whether relPath matches any exclude pattern.
func shouldExclude(relPath string, isDir bool, patterns []string) bool {
	parts := strings.Split(relPath, "/")
	base := parts[len(parts)-1]

	// Directory components of relPath; the last one only counts for directories.
	dirs := parts[:len(parts)-1]
	if isDir {
		dirs = parts
	}

	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}

		if dirPattern, ok := strings.CutSuffix(pattern, "/"); ok {
			for _, dir := range dirs {
				if matched, _ := filepath.Match(dirPattern, dir); matched {
					return true
				}
			}
			continue
		}

		if isDir {
			continue
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}

	return false
}
