package drive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// TempStore keeps the named parts of in-flight transfers on local disk, one
// file per part, under <root>/<driveID>/<fileID>.<tag>. Abandoned sessions
// leave files behind; the drive's general temp lifecycle reclaims them.
type TempStore struct {
	root string
}

func NewTempStore(root string) *TempStore {
	return &TempStore{root: root}
}

// Allocate reserves a fresh temp file id on the given drive.
func (s *TempStore) Allocate(driveID uuid.UUID) InternalFileID {
	return InternalFileID{DriveID: driveID, FileID: uuid.New()}
}

func (s *TempStore) partPath(file InternalFileID, tag string) string {
	return filepath.Join(s.root, file.DriveID.String(), fmt.Sprintf("%s.%s", file.FileID, tag))
}

// WritePart appends data under the part-specific tag and reports the total
// bytes written for the part.
func (s *TempStore) WritePart(file InternalFileID, tag string, data []byte) (int64, error) {
	dir := filepath.Join(s.root, file.DriveID.String())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(s.partPath(file, tag), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ReadPart returns the full bytes of one part. A missing part returns
// os.ErrNotExist via the underlying read.
func (s *TempStore) ReadPart(file InternalFileID, tag string) ([]byte, error) {
	return os.ReadFile(s.partPath(file, tag))
}

// Cleanup removes every part written for the temp file.
func (s *TempStore) Cleanup(file InternalFileID) error {
	pattern := filepath.Join(s.root, file.DriveID.String(), file.FileID.String()+".*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
