// Package resolve implements the Version Resolver (§4.6): resolving a
// name/version-range@user/channel requirement into a concrete recipe
// revision by consulting the cache, then each remote's listing, selecting
// the greatest version satisfying the range. Grounded on
// github.com/Masterminds/semver (vendored by the teacher for exactly this
// purpose in its own constraint-matching code) for range parsing and
// ordering.
package resolve

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"

	"ccpm/cache"
	"ccpm/errs"
)

// Candidate is one version known to exist, either in the cache or on a
// remote, along with the recipe revision(s) available for it.
type Candidate struct {
	Version string
	// Revisions lists every known recipe_revision for Version, in no
	// particular order; Candidate carries no timestamps, and the resolver
	// picks among them by lexicographic order of the hash (latestRevision).
	Revisions []string
	Remote    string // "" means local cache
}

// Lister is implemented by whatever can enumerate known versions for a
// name@user/channel: the cache store, or a remote (through the Remote
// Proxy's collaborator). Kept as a seam so the resolver never talks to a
// remote wire protocol directly (§1 scope).
type Lister interface {
	ListVersions(ctx context.Context, name, user, channel string) ([]Candidate, error)
}

// CacheLister adapts a *cache.Store to Lister by reading its recipe-revision
// rows.
type CacheLister struct {
	Store *cache.Store
}

func (c CacheLister) ListVersions(ctx context.Context, name, user, channel string) ([]Candidate, error) {
	// The store is keyed by "name/version@user/channel" (see
	// reference.Reference.String); without a version we can't do a
	// prefix scan directly, so ListAllVersions scans by name and filters
	// user/channel per row, and we group the results by version here.
	rows, err := c.Store.ListAllVersions(name, user, channel)
	if err != nil {
		return nil, err
	}
	byVersion := map[string]*Candidate{}
	var order []string
	for _, r := range rows {
		v := versionFromReference(r.Reference)
		cand, ok := byVersion[v]
		if !ok {
			cand = &Candidate{Version: v}
			byVersion[v] = cand
			order = append(order, v)
		}
		cand.Revisions = append(cand.Revisions, r.RecipeRevision)
	}
	out := make([]Candidate, 0, len(order))
	for _, v := range order {
		out = append(out, *byVersion[v])
	}
	return out, nil
}

func versionFromReference(ref string) string {
	// ref is "name/version@user/channel"; version is between the first '/'
	// and the '@'.
	i := strings.IndexByte(ref, '/')
	rest := ref[i+1:]
	if j := strings.IndexByte(rest, '@'); j >= 0 {
		return rest[:j]
	}
	return rest
}

// Resolver resolves version ranges to concrete recipe revisions, memoizing
// results per graph build (§4.6 "Results are memoized per graph-build to
// ensure the same range resolves identically across diamond merges").
type Resolver struct {
	Listers []Lister // tried in order: cache first, then each remote

	mu    sync.Mutex
	cache map[string]string // memo key -> resolved "version#revision"
}

func NewResolver(listers ...Lister) *Resolver {
	return &Resolver{Listers: listers, cache: make(map[string]string)}
}

// NewCacheBackedResolver builds the production Resolver: it always
// consults store's cache rows first (§4.6 "consulting cache then
// remotes"), then falls through to remotes in registry order.
func NewCacheBackedResolver(store *cache.Store, remotes ...Lister) *Resolver {
	listers := make([]Lister, 0, len(remotes)+1)
	listers = append(listers, CacheLister{Store: store})
	listers = append(listers, remotes...)
	return NewResolver(listers...)
}

// Resolve finds the greatest version satisfying rangeExpr among name@user/channel
// and, among that version's revisions, returns the lexicographically
// greatest revision hash; revision timestamps are not consulted.
func (r *Resolver) Resolve(ctx context.Context, name, rangeExpr, user, channel string) (version, revision string, err error) {
	memoKey := name + "/" + rangeExpr + "@" + user + "/" + channel
	r.mu.Lock()
	if v, ok := r.cache[memoKey]; ok {
		r.mu.Unlock()
		parts := strings.SplitN(v, "#", 2)
		return parts[0], parts[1], nil
	}
	r.mu.Unlock()

	constraint, err := ParseRange(rangeExpr)
	if err != nil {
		return "", "", errors.Wrapf(err, "parsing version range %q", rangeExpr)
	}

	var best *semver.Version
	var bestCandidate Candidate
	for _, lister := range r.Listers {
		cands, err := lister.ListVersions(ctx, name, user, channel)
		if err != nil {
			continue
		}
		for _, c := range cands {
			v, err := semver.NewVersion(c.Version)
			if err != nil {
				continue
			}
			if err := constraint.Admits(v); err != nil {
				continue
			}
			if best == nil || v.GreaterThan(best) {
				best, bestCandidate = v, c
			}
		}
		if best != nil {
			break // cache (or this remote) satisfied the range; §4.6 "consulting cache then remotes"
		}
	}
	if best == nil {
		return "", "", &errs.NotFound{Subject: name + "/" + rangeExpr}
	}

	rev := latestRevision(bestCandidate.Revisions)

	// Return the version string as listed (e.g. "1.1"), not semver's
	// normalized form ("1.1.0"), so it names the same cache rows.
	r.mu.Lock()
	r.cache[memoKey] = bestCandidate.Version + "#" + rev
	r.mu.Unlock()

	return bestCandidate.Version, rev, nil
}

// latestRevision picks the lexicographically greatest revision hash. It has
// no timestamps to compare and does not look at the order revs were listed
// in.
func latestRevision(revs []string) string {
	if len(revs) == 0 {
		return ""
	}
	out := append([]string(nil), revs...)
	sort.Strings(out)
	return out[len(out)-1]
}

// ParseRange translates the Conan-style bracket range grammar
// (`[>=1.0 <2.0]`, or a bare version for an exact pin) into a
// github.com/Masterminds/semver Constraint.
func ParseRange(expr string) (semver.Constraint, error) {
	expr = strings.TrimSpace(expr)
	inner := expr
	if strings.HasPrefix(expr, "[") && strings.HasSuffix(expr, "]") {
		inner = expr[1 : len(expr)-1]
	}
	fields := strings.Fields(inner)
	if len(fields) == 0 {
		return nil, errors.Errorf("empty version range %q", expr)
	}
	return semver.NewConstraint(strings.Join(fields, ","))
}
