package cache

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"ccpm/errs"
)

// dirtyFileName is the dirty-bit sentinel file: set before any write to a
// package directory, cleared only after a successful promotion (§3
// Lifecycles). Any reader that later finds it set must treat the row as
// absent and evict it before retrying (§5).
const dirtyFileName = ".conan_dirty"

// SetDirty marks dir as being in the middle of a write.
func SetDirty(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	f, err := os.Create(filepath.Join(dir, dirtyFileName))
	if err != nil {
		return errors.Wrapf(err, "setting dirty bit on %s", dir)
	}
	return f.Close()
}

// ClearDirty clears the dirty bit. Writers must call this last, after every
// other write to dir has completed and, for a promotion, after the database
// row has been updated.
func ClearDirty(dir string) error {
	err := os.Remove(filepath.Join(dir, dirtyFileName))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "clearing dirty bit on %s", dir)
	}
	return nil
}

// IsDirty reports whether dir's dirty bit is set.
func IsDirty(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, dirtyFileName))
	return err == nil
}

// SetDirtyFile marks path - a plain file, not a package directory - as
// being in the middle of a write, recording the bit in a sibling sentinel
// (path+".dirty") rather than inside path itself: unlike a package
// revision's folder, a cached download blob is a single file and must
// stay one, or the downloader's os.OpenFile of it fails with EISDIR.
func SetDirtyFile(path string) error {
	f, err := os.Create(path + ".dirty")
	if err != nil {
		return errors.Wrapf(err, "setting dirty bit on %s", path)
	}
	return f.Close()
}

// ClearDirtyFile clears the sibling dirty bit set by SetDirtyFile.
func ClearDirtyFile(path string) error {
	err := os.Remove(path + ".dirty")
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "clearing dirty bit on %s", path)
	}
	return nil
}

// IsDirtyFile reports whether path's sibling dirty bit is set.
func IsDirtyFile(path string) bool {
	_, err := os.Stat(path + ".dirty")
	return err == nil
}

// Remediate evicts a row/folder found dirty on read: it removes the on-disk
// folder entirely and deletes the row by path, turning the next lookup into
// a clean miss instead of a repeated *errs.CacheCorruption.
func (s *Store) Remediate(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return errors.Wrapf(err, "removing dirty folder %s", path)
	}
	if err := s.DeleteByPath(path); err != nil {
		if _, ok := err.(*errs.DoesNotExist); ok {
			return nil
		}
		return err
	}
	return nil
}

// GetChecked is Get, but treats a row whose path carries a set dirty bit as
// nonexistent (§5 "a reader that sees a dirty bit must treat the row as
// nonexistent"), surfacing *errs.CacheCorruption instead of a stale Row so
// callers can Remediate before retrying.
func (s *Store) GetChecked(reference, rrev, pkgid, prev string) (*Row, error) {
	row, err := s.Get(reference, rrev, pkgid, prev)
	if err != nil {
		return nil, err
	}
	if IsDirty(row.Path) {
		return nil, &errs.CacheCorruption{Path: row.Path, Reason: "dirty bit set"}
	}
	return row, nil
}
