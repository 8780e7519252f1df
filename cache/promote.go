package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	shutil "github.com/termie/go-shutil"

	"ccpm/lock"
)

// Promoter promotes a provisional package revision to its final,
// content-addressed revision (§4.1 algorithm, §3 Lifecycles).
type Promoter struct {
	Store *Store
	Locks *lock.Manager
}

// Promote implements the five-step algorithm:
//  1. caller holds an exclusive lock on the provisional resource (passed in
//     as provisionalHandle);
//  2. compute the final package_revision from the on-disk file tree;
//  3. if a row for the final revision already exists, remove the current
//     provisional row and discard its folder, returning the existing path;
//  4. otherwise rename the provisional folder to its final path and update
//     the row in one transaction;
//  5. clear the dirty bit last.
func (p *Promoter) Promote(ctx context.Context, reference, rrev, pkgid, provisionalRev string, provisionalHandle *lock.Handle) (finalPath string, finalRev string, err error) {
	row, err := p.Store.Get(reference, rrev, pkgid, provisionalRev)
	if err != nil {
		return "", "", errors.Wrap(err, "looking up provisional row")
	}

	finalRev, err = contentHash(row.Path)
	if err != nil {
		return "", "", errors.Wrap(err, "computing final package revision")
	}

	if existing, err := p.Store.Get(reference, rrev, pkgid, finalRev); err == nil {
		// Step 3: an identical build already landed under the final
		// revision (e.g. a concurrent builder raced us and won). Discard
		// our provisional copy and report the existing path.
		if err := os.RemoveAll(row.Path); err != nil {
			return "", "", errors.Wrapf(err, "discarding provisional folder %s", row.Path)
		}
		if err := p.Store.Remove(reference, rrev, pkgid, provisionalRev); err != nil {
			return "", "", errors.Wrap(err, "removing superseded provisional row")
		}
		if err := ClearDirty(existing.Path); err != nil {
			return "", "", err
		}
		return existing.Path, finalRev, nil
	}

	finalPath = finalPackagePath(row.Path, finalRev)

	finalHandle, err := p.Locks.Exchange(ctx, provisionalHandle, finalResource(reference, rrev, pkgid, finalRev), lock.Exclusive)
	if err != nil {
		return "", "", errors.Wrap(err, "exchanging provisional lock for final lock")
	}
	defer finalHandle.Release()

	if err := renameOrCopy(row.Path, finalPath); err != nil {
		return "", "", errors.Wrapf(err, "promoting %s to %s", row.Path, finalPath)
	}

	if err := p.Store.Update(reference, rrev, pkgid, provisionalRev, "", "", "", finalRev, finalPath, ""); err != nil {
		return "", "", errors.Wrap(err, "updating row to final revision")
	}

	if err := ClearDirty(finalPath); err != nil {
		return "", "", err
	}
	return finalPath, finalRev, nil
}

func finalResource(reference, rrev, pkgid, finalRev string) string {
	return reference + "#" + rrev + ":" + pkgid + "#" + finalRev
}

func finalPackagePath(provisionalPath, finalRev string) string {
	return filepath.Join(filepath.Dir(provisionalPath), finalRev)
}

// renameOrCopy renames the provisional directory to its final location,
// falling back to a recursive copy-then-remove when the rename crosses a
// filesystem boundary (os.Rename's EXDEV), using go-shutil's CopyTree the
// same way project_manager.go's checkout path does for a plain,
// non-VCS-aware directory copy.
func renameOrCopy(from, to string) error {
	if err := os.Rename(from, to); err == nil {
		return nil
	}
	cfg := &shutil.CopyTreeOptions{Symlinks: true, CopyFunction: shutil.Copy}
	if err := shutil.CopyTree(from, to, cfg); err != nil {
		return err
	}
	return os.RemoveAll(from)
}

func contentHash(dir string) (string, error) {
	m, err := WalkManifest(dir, 0)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256([]byte(m.CombinedHash()))
	return hex.EncodeToString(h[:])[:40], nil
}
