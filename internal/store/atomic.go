package store

import (
	"os"
	"path/filepath"

	"github.com/kjk/common/atomicfile"
	"github.com/pkg/errors"
)

// writeFileAtomic replaces path with data.  atomicfile writes to a temp file
// in the same directory and renames it over path on Close, so readers see
// either the old collection or the new one and never a torn file.  The
// parent directory is created when missing.
func writeFileAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create data dir")
		}
	}

	f, err := atomicfile.New(path)
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer f.RemoveIfNotClosed()

	if _, err := f.Write(data); err != nil {
		return errors.Wrap(err, "write temp file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "replace backing file")
	}
	// temp files are created 0600
	return errors.Wrap(os.Chmod(path, 0o644), "chmod backing file")
}
