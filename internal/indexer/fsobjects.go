package indexer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/archivetools/indexd/internal/errors"
	"github.com/archivetools/indexd/internal/storage"
)

// FSObjects reads content bytes from a local object directory laid out as
// <root>/<first two hex chars>/<full hex id>. This is the on-disk mirror
// format produced by the archive export tooling.
type FSObjects struct {
	root string
}

var _ ContentGetter = (*FSObjects)(nil)

// NewFSObjects creates a getter rooted at dir. The directory must exist.
func NewFSObjects(dir string) (*FSObjects, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid,
			"object directory not accessible: "+dir, err)
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid,
			"object path is not a directory: %s", dir)
	}
	return &FSObjects{root: dir}, nil
}

// Path returns the on-disk location for id.
func (f *FSObjects) Path(id storage.ContentID) string {
	hex := id.String()
	return filepath.Join(f.root, hex[:2], hex)
}

// Get reads the bytes for id, honoring context cancellation before the read.
func (f *FSObjects) Get(ctx context.Context, id storage.ContentID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path(id))
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"content not readable: "+id.String(), err).
			WithDetail("content_id", id.String())
	}
	return data, nil
}
