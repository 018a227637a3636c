package drive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// PayloadStore holds committed payload and thumbnail blobs for long-term
// files. Keys are scoped by drive, file, and part key.
type PayloadStore interface {
	Put(ctx context.Context, file InternalFileID, key string, data []byte) error
	Get(ctx context.Context, file InternalFileID, key string) ([]byte, error)
	Delete(ctx context.Context, file InternalFileID, key string) error
}

// LocalPayloadStore keeps blobs on the node's local disk. This is the
// default backend.
type LocalPayloadStore struct {
	root string
}

func NewLocalPayloadStore(root string) *LocalPayloadStore {
	return &LocalPayloadStore{root: root}
}

func (s *LocalPayloadStore) path(file InternalFileID, key string) string {
	return filepath.Join(s.root, file.DriveID.String(), fmt.Sprintf("%s.%s", file.FileID, key))
}

func (s *LocalPayloadStore) Put(_ context.Context, file InternalFileID, key string, data []byte) error {
	dir := filepath.Join(s.root, file.DriveID.String())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path(file, key), data, 0o600)
}

func (s *LocalPayloadStore) Get(_ context.Context, file InternalFileID, key string) ([]byte, error) {
	return os.ReadFile(s.path(file, key))
}

func (s *LocalPayloadStore) Delete(_ context.Context, file InternalFileID, key string) error {
	err := os.Remove(s.path(file, key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// PayloadObjectKey is the flat object key used by remote blob backends.
func PayloadObjectKey(file InternalFileID, key string) string {
	return fmt.Sprintf("drives/%s/%s/%s", file.DriveID, file.FileID, key)
}

var _ PayloadStore = (*LocalPayloadStore)(nil)
