package blob

import (
	"cellenics/internal/infra/blob/fs"
)

// NewFilesystem constructs a filesystem-backed blob.Store rooted at the provided path.
// Each bucket is a directory under root.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
