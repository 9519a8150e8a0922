package metadata

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// Suffix is appended to the full content filename to form its sidecar path.
	Suffix = ".meta"

	// TempPattern names in-flight sidecar writes; index ignore rules exclude it.
	TempPattern = "*.agtmp"
)

// Store reads and writes metadata records by asset identity.
// Write replaces the whole record; append-only discipline is kept by the caller.
type Store interface {
	Read(assetID string) (*Record, error)
	Write(assetID string, record *Record) error
}

// SidecarStore keeps each record next to its content file, at the content path plus Suffix.
type SidecarStore struct {
	root string
}

func NewSidecarStore(root string) *SidecarStore {
	return &SidecarStore{root: root}
}

// ContentPath resolves a slash-separated asset identity below the store root.
func (s *SidecarStore) ContentPath(assetID string) string {
	return filepath.Join(s.root, filepath.FromSlash(assetID))
}

func (s *SidecarStore) SidecarPath(assetID string) string {
	return SidecarPath(s.ContentPath(assetID))
}

// SidecarPath derives the sidecar location of a content file.
func SidecarPath(contentPath string) string {
	return contentPath + Suffix
}

func (s *SidecarStore) Read(assetID string) (*Record, error) {
	path := s.SidecarPath(assetID)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, readError(path, err)
	}

	record, err := Decode(data)
	if err != nil {
		return nil, parseError(path, err)
	}
	return record, nil
}

func (s *SidecarStore) Write(assetID string, record *Record) error {
	path := s.SidecarPath(assetID)

	data, err := Encode(record)
	if err != nil {
		return writeError(path, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return writeError(path, err)
	}
	return nil
}

// writeFileAtomic writes to a sibling temp file and renames it over path, so readers never
// observe a half-written sidecar.
func writeFileAtomic(path string, data []byte) error {
	dir, name := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, "."+name+".*"+TempPattern[1:])
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
