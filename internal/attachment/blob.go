// Package attachment stages file uploads and gates message sends on their
// completion.
package attachment

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pichehq/workspace-messaging/internal/model"
)

// BlobInfo describes a stored blob.
type BlobInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// BlobStore accepts raw file bytes and hands back a durable location.
type BlobStore interface {
	// Put writes the blob and returns its info. A write that fails or
	// overruns maxSize leaves nothing behind.
	Put(id, name string, r io.Reader, maxSize int64) (BlobInfo, error)
	// Open returns the blob contents and info.
	Open(id string) (io.ReadCloser, BlobInfo, error)
	// Delete removes the blob if present.
	Delete(id string) error
}

// DiskStore is a filesystem-backed BlobStore. Each blob is a file named by
// its id with a sidecar meta file carrying the original name and the
// sniffed content type.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the directory if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) blobPath(id string) string {
	return filepath.Join(s.dir, id)
}

func (s *DiskStore) metaPath(id string) string {
	return filepath.Join(s.dir, id+".meta.json")
}

// Put streams the upload to disk, enforcing maxSize while copying so a
// declared size cannot lie its way past the ceiling. Any failure removes
// the partial file.
func (s *DiskStore) Put(id, name string, r io.Reader, maxSize int64) (BlobInfo, error) {
	path := s.blobPath(id)
	f, err := os.Create(path)
	if err != nil {
		return BlobInfo{}, fmt.Errorf("failed to create blob: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(r, maxSize+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		_ = os.Remove(path)
		return BlobInfo{}, fmt.Errorf("failed to write blob: %w", err)
	case closeErr != nil:
		_ = os.Remove(path)
		return BlobInfo{}, fmt.Errorf("failed to close blob: %w", closeErr)
	case written > maxSize:
		_ = os.Remove(path)
		return BlobInfo{}, model.ErrAttachmentTooLarge
	}

	mime, err := mimetype.DetectFile(path)
	contentType := "application/octet-stream"
	if err == nil {
		contentType = mime.String()
	}

	info := BlobInfo{ID: id, Name: name, ContentType: contentType, Size: written}
	meta, err := json.Marshal(info)
	if err == nil {
		err = os.WriteFile(s.metaPath(id), meta, 0o644)
	}
	if err != nil {
		_ = os.Remove(path)
		return BlobInfo{}, fmt.Errorf("failed to write blob meta: %w", err)
	}
	return info, nil
}

// Open returns the blob contents and info.
func (s *DiskStore) Open(id string) (io.ReadCloser, BlobInfo, error) {
	meta, err := os.ReadFile(s.metaPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, BlobInfo{}, model.ErrAttachmentNotFound
	}
	if err != nil {
		return nil, BlobInfo{}, err
	}
	var info BlobInfo
	if err := json.Unmarshal(meta, &info); err != nil {
		return nil, BlobInfo{}, fmt.Errorf("corrupt blob meta for %s: %w", id, err)
	}
	f, err := os.Open(s.blobPath(id))
	if err != nil {
		return nil, BlobInfo{}, err
	}
	return f, info, nil
}

// Delete removes the blob and its meta.
func (s *DiskStore) Delete(id string) error {
	if err := os.Remove(s.blobPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
