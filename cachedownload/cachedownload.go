// Package cachedownload implements the Caching Downloader (§4.4): a layer
// above download.Downloader that keys immutable fetches by a hash of
// URL+checksum, serving hits from a local cache directory under a
// per-hash lock, with a dirty-bit protocol identical in spirit to the one
// cache.Store uses for provisional package revisions - grounded on the same
// "set dirty before any write, clear only after success" rule from §3,
// generalized from package revisions to cached download blobs.
package cachedownload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	shutil "github.com/termie/go-shutil"

	"ccpm/cache"
	"ccpm/download"
	"ccpm/lock"
)

// CachingDownloader wraps a plain download.Downloader with a
// fingerprint-keyed filesystem cache.
type CachingDownloader struct {
	Plain    *download.Downloader
	CacheDir string
	Locks    *lock.Manager
}

func New(plain *download.Downloader, cacheDir string, locks *lock.Manager) *CachingDownloader {
	return &CachingDownloader{Plain: plain, CacheDir: cacheDir, Locks: locks}
}

// Fingerprint computes sha256(url || (sha256 || sha1 || md5 || "")) per
// §4.4. It is the cache key; two fetches with the same fingerprint are
// assumed to produce byte-identical content.
func Fingerprint(url, sha256Sum, sha1Sum, md5Sum string) string {
	checksum := sha256Sum
	if checksum == "" {
		checksum = sha1Sum
	}
	if checksum == "" {
		checksum = md5Sum
	}
	h := sha256.Sum256([]byte(url + checksum))
	return hex.EncodeToString(h[:])
}

// HasChecksum reports whether opts carries any checksum; the caching
// downloader must only be used when one is present (§4.4 "Use only when a
// checksum is supplied").
func HasChecksum(opts download.Options) bool {
	return opts.SHA256 != "" || opts.SHA1 != "" || opts.MD5 != ""
}

// Fetch serves url at dest, using the fingerprint cache when opts carries a
// checksum, and falling through to the plain downloader otherwise.
func (c *CachingDownloader) Fetch(ctx context.Context, url, dest string, opts download.Options) error {
	if !HasChecksum(opts) {
		return c.Plain.Download(ctx, url, dest, opts)
	}

	fp := Fingerprint(url, opts.SHA256, opts.SHA1, opts.MD5)
	cachedPath := filepath.Join(c.CacheDir, fp)

	h, err := c.Locks.Acquire(ctx, "cachedownload:"+fp, lock.Exclusive)
	if err != nil {
		return errors.Wrap(err, "acquiring cache download lock")
	}
	defer h.Release()

	if cache.IsDirtyFile(cachedPath) {
		if err := os.RemoveAll(cachedPath); err != nil {
			return errors.Wrapf(err, "removing dirty cache entry %s", cachedPath)
		}
		if err := cache.ClearDirtyFile(cachedPath); err != nil {
			return err
		}
	}

	if _, err := os.Stat(cachedPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(cachedPath), 0o755); err != nil {
			return errors.Wrapf(err, "creating cache directory for %s", cachedPath)
		}
		if err := cache.SetDirtyFile(cachedPath); err != nil {
			return err
		}
		opts.Overwrite = true
		if err := c.Plain.Download(ctx, url, cachedPath, opts); err != nil {
			os.RemoveAll(cachedPath)
			return err
		}
		if err := cache.ClearDirtyFile(cachedPath); err != nil {
			return err
		}
	}

	// Never move the cached blob out from under the cache: always copy, so
	// a later fetch of the same fingerprint still finds it (§4.4 step 4).
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.Wrapf(err, "creating parent directory for %s", dest)
	}
	return shutil.CopyFile(cachedPath, dest, true)
}
