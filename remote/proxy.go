package remote

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"ccpm/cache"
	"ccpm/cachedownload"
	"ccpm/download"
	"ccpm/errs"
	"ccpm/pkgstatus"
	"ccpm/reference"
)

// ManifestFetcher fetches a recipe's manifest and source tarball from a
// named remote. The remote-server HTTP wire format is explicitly out of
// scope (§1); this interface is the seam through which that external
// collaborator is consulted, the same way golang-dep's SourceManager
// interface abstracts over "however a repository is actually reached."
type ManifestFetcher interface {
	// FetchManifest returns the remote's current manifest for reference,
	// and the export tarball's URL plus checksum so a cache miss can be
	// downloaded through the Caching Downloader.
	FetchManifest(ctx context.Context, remoteName, reference string) (*cache.Manifest, tarballInfo, error)
}

// tarballInfo is what a remote hands back about where/how to fetch a
// recipe export when it isn't yet cached.
type tarballInfo struct {
	URL    string
	SHA256 string
}

// Proxy decides, per reference, whether to serve from cache, check for
// updates, or download from a remote (§4.5).
type Proxy struct {
	Store    *cache.Store
	Layout   cache.Layout
	Fetcher  ManifestFetcher
	CacheDL  *cachedownload.CachingDownloader
	Registry *Registry
}

// Result is what the Graph Builder consumes after resolving one reference.
type Result struct {
	Status pkgstatus.Status
	Path   string
	Remote string
}

// Resolve implements the §4.5 decision table. A download tries only
// selectedRemote when it is non-empty (and fails if that remote is unknown
// or disabled); otherwise it tries every enabled remote in registry order.
func (p *Proxy) Resolve(ctx context.Context, ref string, checkUpdates, update bool, selectedRemote string) (Result, error) {
	row, err := p.Store.GetChecked(ref, "", "", "")
	if err != nil {
		if corrupt, ok := err.(*errs.CacheCorruption); ok {
			if remErr := p.Store.Remediate(corrupt.Path); remErr != nil {
				return Result{}, remErr
			}
			row = nil
		} else if _, ok := err.(*errs.DoesNotExist); !ok {
			return Result{}, err
		}
	}

	if row == nil {
		return p.download(ctx, ref, selectedRemote)
	}

	if !checkUpdates {
		return Result{Status: pkgstatus.InCache, Path: row.Path, Remote: row.Remote}, nil
	}

	if row.Remote == "" {
		return Result{Status: pkgstatus.NoRemote, Path: row.Path}, nil
	}

	remoteManifest, _, err := p.Fetcher.FetchManifest(ctx, row.Remote, ref)
	if err != nil {
		return Result{Status: pkgstatus.NotInRemote, Path: row.Path, Remote: row.Remote}, nil
	}

	localManifest, err := cache.WalkManifest(row.Path, int64(row.Timestamp))
	if err != nil {
		return Result{}, errors.Wrap(err, "computing local manifest")
	}

	switch compareManifests(localManifest, remoteManifest, row.Timestamp) {
	case manifestEqual:
		return Result{Status: pkgstatus.InCache, Path: row.Path, Remote: row.Remote}, nil
	case manifestRemoteNewer:
		if !update {
			return Result{Status: pkgstatus.Updateable, Path: row.Path, Remote: row.Remote}, nil
		}
		if err := os.RemoveAll(row.Path); err != nil {
			return Result{}, errors.Wrapf(err, "removing stale cache folder %s", row.Path)
		}
		if err := p.Store.DeleteByPath(row.Path); err != nil {
			return Result{}, err
		}
		res, err := p.download(ctx, ref, row.Remote)
		if err != nil {
			return Result{}, err
		}
		res.Status = pkgstatus.Updated
		return res, nil
	default: // manifestLocalNewer
		return Result{Status: pkgstatus.Newer, Path: row.Path, Remote: row.Remote}, nil
	}
}

type manifestComparison int

const (
	manifestEqual manifestComparison = iota
	manifestRemoteNewer
	manifestLocalNewer
)

// compareManifests compares by content hash plus timestamp; timestamp ties
// resolve in favor of the cache (§4.5 "remote_manifest is compared by
// content hash plus timestamp; timestamp ties resolve in favor of the
// cache").
func compareManifests(local, remote *cache.Manifest, localTimestamp float64) manifestComparison {
	if local.Equal(remote) {
		return manifestEqual
	}
	if float64(remote.Time) > localTimestamp {
		return manifestRemoteNewer
	}
	return manifestLocalNewer
}

func (p *Proxy) download(ctx context.Context, ref, selectedRemote string) (Result, error) {
	candidates := p.candidateRemotes(selectedRemote)
	if len(candidates) == 0 {
		return Result{}, &errs.NotFound{Subject: ref}
	}

	parsed, err := reference.Parse(ref)
	if err != nil {
		return Result{}, errors.Wrapf(err, "parsing reference %s", ref)
	}
	rrev := parsed.RecipeRevision
	if rrev == "" {
		rrev = "0"
	}

	var lastErr error
	for _, rem := range candidates {
		_, info, err := p.Fetcher.FetchManifest(ctx, rem.Name, ref)
		if err != nil {
			lastErr = err
			continue
		}
		dlDest := filepath.Join(p.Layout.DownloadExport(parsed.Name, parsed.Version, parsed.User, parsed.Channel, rrev), "export.tar.gz")
		exportDir := p.Layout.Export(parsed.Name, parsed.Version, parsed.User, parsed.Channel, rrev)

		if err := cache.SetDirty(exportDir); err != nil {
			return Result{}, err
		}
		if info.URL != "" {
			if err := p.CacheDL.Fetch(ctx, info.URL, dlDest, download.Options{SHA256: info.SHA256}); err != nil {
				cache.ClearDirty(exportDir)
				lastErr = err
				continue
			}
		}
		if err := cache.ClearDirty(exportDir); err != nil {
			return Result{}, err
		}

		if _, err := p.Store.Insert(ref, rrev, "", "", exportDir, rem.Name); err != nil {
			return Result{}, err
		}
		return Result{Status: pkgstatus.Downloaded, Path: exportDir, Remote: rem.Name}, nil
	}
	if lastErr != nil {
		return Result{}, &errs.NotFound{Subject: ref, Cause: lastErr}
	}
	return Result{}, &errs.NotFound{Subject: ref}
}

func (p *Proxy) candidateRemotes(selected string) []Remote {
	if selected != "" {
		if r, ok := p.Registry.ByName(selected); ok && !r.Disabled {
			return []Remote{r}
		}
		// §9(b): disabled remotes are skipped silently during resolution;
		// a build-wide warning is emitted once by the caller, not here.
		return nil
	}
	return p.Registry.Enabled()
}
