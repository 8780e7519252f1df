// Package cache implements the Cache Store (§4.1): the filesystem layout of
// recipe and package revisions plus the relational table (§6 schema)
// indexing references to on-disk folders, backed by go.etcd.io/bbolt (the
// maintained successor of github.com/boltdb/bolt, which the teacher's
// internal/gps/source_cache_bolt.go embeds for its own, narrower
// source-version cache). The bucket layout and key encoding generalize that
// file's pattern from "repo versions" to the full reference table §6
// describes.
package cache

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"ccpm/cache/boltkeys"
	"ccpm/errs"
	"ccpm/reference"
)

var (
	rowsBucket = []byte("conan_references")
	pathBucket = []byte("conan_references_by_path")
)

// Row mirrors the database schema in §6.
type Row struct {
	Reference       string  `json:"reference"`
	RecipeRevision  string  `json:"rrev"`
	PackageID       string  `json:"pkgid,omitempty"`
	PackageRevision string  `json:"prev,omitempty"`
	Path            string  `json:"path"`
	Timestamp       float64 `json:"timestamp"`
	Remote          string  `json:"remote,omitempty"`

	key []byte // internal bolt key, not persisted as a field value
}

// Store is the Cache Store: a root directory plus the reference table.
type Store struct {
	root string
	db   *bolt.DB
}

// Open opens (creating if necessary) the cache store rooted at root. The
// database file is <root>/.conan.db per §6.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating cache root %s", root)
	}
	db, err := bolt.Open(filepath.Join(root, ".conan.db"), 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening cache database")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(rowsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(pathBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing cache buckets")
	}
	return &Store{root: root, db: db}, nil
}

// Close releases the underlying database handle. The Store exclusively owns
// the root directory and the database file (§3 Ownership): no other code
// may open the same file concurrently.
func (s *Store) Close() error { return s.db.Close() }

// Root returns the cache store's root directory.
func (s *Store) Root() string { return s.root }

func identity(reference, rrev, pkgid, prev string) []byte {
	return boltkeys.IdentityPrefix(reference, rrev, pkgid, prev)
}

// Insert adds a new row, failing with *errs.AlreadyExists if the
// (reference, rrev, pkgid, prev) unique key or the path is already taken.
func (s *Store) Insert(reference, rrev, pkgid, prev, path, remote string) (rowID uint64, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		rows := tx.Bucket(rowsBucket)
		paths := tx.Bucket(pathBucket)

		if paths.Get([]byte(path)) != nil {
			return &errs.AlreadyExists{Subject: "path " + path}
		}

		prefix := identity(reference, rrev, pkgid, prev)
		c := rows.Cursor()
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			return &errs.AlreadyExists{Subject: reference + " " + rrev + " " + pkgid + " " + prev}
		}

		seq, _ := rows.NextSequence()
		key := boltkeys.RowKey(reference, rrev, pkgid, prev, seq)
		row := Row{
			Reference: reference, RecipeRevision: rrev, PackageID: pkgid, PackageRevision: prev,
			Path: path, Timestamp: nowTimestamp(), Remote: remote,
		}
		buf, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if err := rows.Put(key, buf); err != nil {
			return err
		}
		if err := paths.Put([]byte(path), key); err != nil {
			return err
		}
		rowID = seq
		return nil
	})
	return rowID, err
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix)+1 {
		return false
	}
	for i, b := range prefix {
		if key[i] != b {
			return false
		}
	}
	return key[len(prefix)] == 0
}

// Get returns the row matching an exact reference, or *errs.DoesNotExist.
func (s *Store) Get(reference, rrev, pkgid, prev string) (*Row, error) {
	var found *Row
	err := s.db.View(func(tx *bolt.Tx) error {
		rows := tx.Bucket(rowsBucket)
		prefix := identity(reference, rrev, pkgid, prev)
		c := rows.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var r Row
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			r.key = append([]byte(nil), k...)
			found = &r
			return nil
		}
		return &errs.DoesNotExist{Subject: reference}
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// LatestRecipeRevision returns the row with the greatest timestamp among
// rows for (name/version@user/channel) having no package_id.
func (s *Store) LatestRecipeRevision(reference string) (*Row, error) {
	return s.latest(reference, "", func(r *Row) bool { return r.PackageID == "" })
}

// LatestPackageRevision returns the row with the greatest timestamp among
// rows for a given (reference, rrev, pkgid).
func (s *Store) LatestPackageRevision(reference, rrev, pkgid string) (*Row, error) {
	return s.latest(reference, rrev+"\x01"+pkgid, func(r *Row) bool { return r.RecipeRevision == rrev && r.PackageID == pkgid })
}

func (s *Store) latest(reference, _ string, match func(*Row) bool) (*Row, error) {
	var best *Row
	err := s.db.View(func(tx *bolt.Tx) error {
		rows := tx.Bucket(rowsBucket)
		prefix := []byte(reference)
		c := rows.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasReferencePrefix(k, prefix); k, v = c.Next() {
			var r Row
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if !match(&r) {
				continue
			}
			if best == nil || r.Timestamp > best.Timestamp ||
				(r.Timestamp == best.Timestamp && r.RecipeRevision > best.RecipeRevision) {
				rc := r
				rc.key = append([]byte(nil), k...)
				best = &rc
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return best, nil
}

func hasReferencePrefix(key, refPrefix []byte) bool {
	if len(key) < len(refPrefix) {
		return false
	}
	for i, b := range refPrefix {
		if key[i] != b {
			return false
		}
	}
	return len(key) == len(refPrefix) || key[len(refPrefix)] == '\x01'
}

// ListRecipeRevisions enumerates every row for a (name/version@user/channel)
// identity having no package_id.
func (s *Store) ListRecipeRevisions(reference string) ([]Row, error) {
	return s.list(reference, func(r *Row) bool { return r.PackageID == "" })
}

// ListAllVersions enumerates every recipe-revision row for name@user/channel
// across every version. Unlike ListRecipeRevisions/ListPackageIDs/
// ListPackageRevisions, whose callers already know the version (so
// "reference" is a full, single-version bolt-key prefix), the Version
// Resolver's range query (§4.6) only knows name/user/channel - the version
// segment sits in the middle of the stored key, not at the end - so this
// scans by the name prefix shared by every version and filters the
// user/channel suffix per row instead of a single contiguous bolt range.
func (s *Store) ListAllVersions(name, user, channel string) ([]Row, error) {
	var out []Row
	err := s.db.View(func(tx *bolt.Tx) error {
		rows := tx.Bucket(rowsBucket)
		prefix := []byte(name + "/")
		c := rows.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var r Row
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.PackageID != "" {
				continue
			}
			ref, err := reference.Parse(r.Reference)
			if err != nil || ref.Name != name || ref.User != user || ref.Channel != channel {
				continue
			}
			r.key = append([]byte(nil), k...)
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// ListPackageIDs enumerates distinct package_ids under (reference, rrev).
func (s *Store) ListPackageIDs(reference, rrev string) ([]Row, error) {
	seen := map[string]bool{}
	rows, err := s.list(reference, func(r *Row) bool {
		if r.RecipeRevision != rrev || r.PackageID == "" {
			return false
		}
		if seen[r.PackageID] {
			return false
		}
		seen[r.PackageID] = true
		return true
	})
	return rows, err
}

// ListPackageRevisions enumerates every row under (reference, rrev, pkgid).
func (s *Store) ListPackageRevisions(reference, rrev, pkgid string) ([]Row, error) {
	return s.list(reference, func(r *Row) bool {
		return r.RecipeRevision == rrev && r.PackageID == pkgid
	})
}

func (s *Store) list(reference string, match func(*Row) bool) ([]Row, error) {
	var out []Row
	err := s.db.View(func(tx *bolt.Tx) error {
		rows := tx.Bucket(rowsBucket)
		prefix := []byte(reference)
		c := rows.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasReferencePrefix(k, prefix); k, v = c.Next() {
			var r Row
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if match(&r) {
				r.key = append([]byte(nil), k...)
				out = append(out, r)
			}
		}
		return nil
	})
	return out, err
}

// Update atomically rewrites a row's reference/path/remote in one
// transaction (§4.1 update contract). Passing a zero value for newReference
// keeps the existing identity.
func (s *Store) Update(reference, rrev, pkgid, prev string, newReference, newRrev, newPkgid, newPrev, newPath, newRemote string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rows := tx.Bucket(rowsBucket)
		paths := tx.Bucket(pathBucket)

		prefix := identity(reference, rrev, pkgid, prev)
		c := rows.Cursor()
		k, v := c.Seek(prefix)
		if k == nil || !hasPrefix(k, prefix) {
			return &errs.DoesNotExist{Subject: reference}
		}
		var r Row
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		oldKey := append([]byte(nil), k...)
		oldPath := r.Path

		if newReference != "" {
			r.Reference = newReference
		}
		if newRrev != "" {
			r.RecipeRevision = newRrev
		}
		if newPkgid != "" {
			r.PackageID = newPkgid
		}
		if newPrev != "" {
			r.PackageRevision = newPrev
		}
		if newPath != "" {
			if existing := paths.Get([]byte(newPath)); existing != nil && string(existing) != string(oldKey) {
				return &errs.AlreadyExists{Subject: "path " + newPath}
			}
			r.Path = newPath
		}
		if newRemote != "" {
			r.Remote = newRemote
		}
		r.Timestamp = nowTimestamp()

		if err := rows.Delete(oldKey); err != nil {
			return err
		}
		if err := paths.Delete([]byte(oldPath)); err != nil {
			return err
		}

		seq, _ := rows.NextSequence()
		newKey := boltkeys.RowKey(r.Reference, r.RecipeRevision, r.PackageID, r.PackageRevision, seq)
		buf, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := rows.Put(newKey, buf); err != nil {
			return err
		}
		return paths.Put([]byte(r.Path), newKey)
	})
}

// DeleteByPath removes the row whose path matches exactly.
func (s *Store) DeleteByPath(path string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rows := tx.Bucket(rowsBucket)
		paths := tx.Bucket(pathBucket)
		key := paths.Get([]byte(path))
		if key == nil {
			return &errs.DoesNotExist{Subject: "path " + path}
		}
		if err := rows.Delete(key); err != nil {
			return err
		}
		return paths.Delete([]byte(path))
	})
}

// Remove deletes the row matching reference exactly.
func (s *Store) Remove(reference, rrev, pkgid, prev string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rows := tx.Bucket(rowsBucket)
		paths := tx.Bucket(pathBucket)
		prefix := identity(reference, rrev, pkgid, prev)
		c := rows.Cursor()
		k, v := c.Seek(prefix)
		if k == nil || !hasPrefix(k, prefix) {
			return &errs.DoesNotExist{Subject: reference}
		}
		var r Row
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		if err := rows.Delete(k); err != nil {
			return err
		}
		return paths.Delete([]byte(r.Path))
	})
}

func nowTimestamp() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
