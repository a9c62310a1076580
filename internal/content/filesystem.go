package content

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"socratic-go/internal/ledger"
)

// FileSystemStore stores document content as files named by checksum:
//
//	<root>/
//	  blobs/
//	    <checksum>
type FileSystemStore struct {
	root     string
	blobsDir string
}

var _ ledger.ContentStore = (*FileSystemStore)(nil)

// NewFileSystemStore creates a filesystem content store rooted at the given path.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	blobsDir := filepath.Join(root, "blobs")
	if err := os.MkdirAll(blobsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blobs directory: %w", err)
	}

	return &FileSystemStore{root: root, blobsDir: blobsDir}, nil
}

// PutContent stores content identified by its checksum.
// Idempotent: storing the same checksum multiple times is safe.
func (s *FileSystemStore) PutContent(checksum string, r io.Reader, size int64) error {
	destPath := filepath.Join(s.blobsDir, checksum)

	// If content already exists, skip (idempotent)
	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	return s.writeFile(destPath, r, size)
}

// GetContent retrieves content by checksum and writes it to w.
func (s *FileSystemStore) GetContent(checksum string, w io.Writer) error {
	f, err := os.Open(filepath.Join(s.blobsDir, checksum))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("content not found: %s", checksum)
		}
		return fmt.Errorf("failed to open content file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read content file: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the store directories are accessible.
func (s *FileSystemStore) ValidateSetup() error {
	for _, dir := range []string{s.root, s.blobsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("content directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("content path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes data from r to destPath using atomic write (temp file + rename).
func (s *FileSystemStore) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// The temp file lives in the same directory so the rename stays atomic.
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
