// Package fetch implements the VCS-backed recipe export path: pulling a
// recipe's export tree directly from a source-control repository rather
// than a remote's tarball store. The Remote Proxy (§4.5) does not call into
// this package; callers use Exporter directly. Grounded on golang-dep's own
// vcs_repo.go/vcs_source.go, which wrap github.com/Masterminds/vcs the same
// way: clone on first use, pull/checkout to update, wrapping command
// failures as vcs.RemoteError/vcs.LocalError.
package fetch

import (
	"github.com/Masterminds/vcs"
	"github.com/pkg/errors"
)

// Kind names a source-control system.
type Kind string

const (
	Git Kind = "git"
	Hg  Kind = "hg"
	Bzr Kind = "bzr"
	Svn Kind = "svn"
)

// Source is one recipe export's VCS origin: a repository plus the revision
// (tag, branch, or commit) holding the recipe.
type Source struct {
	Kind     Kind
	Remote   string
	Revision string
}

// Exporter clones or updates a Source into a local working copy and checks
// out Revision, the VCS analogue of the Caching Downloader's tarball fetch
// (§4.4) for recipes whose origin is a repository rather than a remote
// server.
type Exporter struct{}

// Export clones remote into localPath if absent, otherwise updates it, then
// checks out revision. The returned path is localPath itself: callers copy
// from there into the Cache Store's export directory the same way a
// downloaded tarball is extracted there (§6 "export/ recipe files").
func (e Exporter) Export(src Source, localPath string) (string, error) {
	repo, err := e.newRepo(src, localPath)
	if err != nil {
		return "", errors.Wrapf(err, "constructing %s repo for %s", src.Kind, src.Remote)
	}

	if !repo.CheckLocal() {
		if err := repo.Get(); err != nil {
			return "", errors.Wrapf(err, "cloning %s", src.Remote)
		}
	} else {
		if err := repo.Update(); err != nil {
			return "", errors.Wrapf(err, "updating %s", localPath)
		}
	}

	if src.Revision != "" {
		if err := repo.UpdateVersion(src.Revision); err != nil {
			return "", errors.Wrapf(err, "checking out %s at %s", localPath, src.Revision)
		}
	}

	return localPath, nil
}

// CommitInfo returns the commit metadata for the currently checked-out
// revision, used to derive a recipe_revision content hash input when the
// recipe's source is VCS-backed rather than a tarball.
func (e Exporter) CommitInfo(src Source, localPath string) (*vcs.CommitInfo, error) {
	repo, err := e.newRepo(src, localPath)
	if err != nil {
		return nil, err
	}
	id, err := repo.Version()
	if err != nil {
		return nil, errors.Wrap(err, "reading checked-out version")
	}
	return repo.CommitInfo(id)
}

func (e Exporter) newRepo(src Source, localPath string) (vcs.Repo, error) {
	switch src.Kind {
	case Git:
		return vcs.NewGitRepo(src.Remote, localPath)
	case Hg:
		return vcs.NewHgRepo(src.Remote, localPath)
	case Bzr:
		return vcs.NewBzrRepo(src.Remote, localPath)
	case Svn:
		return vcs.NewSvnRepo(src.Remote, localPath)
	default:
		return nil, errors.Errorf("unsupported VCS kind %q", src.Kind)
	}
}
