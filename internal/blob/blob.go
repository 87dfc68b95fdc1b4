package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sourcefile/pingline-server/internal/store"
)

// Store saves uploaded attachment bytes on the local disk and hands back a
// reference the message record carries verbatim.
type Store struct {
	dir string
}

// NewStore creates the upload directory if needed and returns a Store
// rooted at it.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save streams r into a fresh file under the upload directory. The stored
// name is random; the original name survives only in the returned reference.
func (s *Store) Save(r io.Reader, originalName string) (*store.Attachment, error) {
	name := uuid.NewString() + sanitizeExt(originalName)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create blob file: %w", err)
	}

	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write blob file: %w", err)
	}

	return &store.Attachment{
		Path:         path,
		OriginalName: filepath.Base(originalName),
		ByteSize:     written,
	}, nil
}

// Remove deletes a previously saved blob. Missing files are ignored so the
// call stays idempotent.
func (s *Store) Remove(path string) error {
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(s.dir) {
		return fmt.Errorf("path outside upload dir: %s", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob file: %w", err)
	}
	return nil
}

// sanitizeExt keeps a short, dot-prefixed extension from the original name
// so downloads get a sensible content type. Anything odd is dropped.
func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) == 0 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
