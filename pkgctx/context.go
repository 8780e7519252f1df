// Package pkgctx defines a Context value bundling cache root, remotes,
// profiles, and the output sink, the same way golang-dep's own Context
// struct carries GOPATH, loggers and a cache manager instead of relying on
// globals. No other package in this module takes a Context: the cache,
// graph, remote and resolve entry points receive their collaborators as
// explicit arguments and struct fields.
package pkgctx

import (
	"context"

	"ccpm/log"
	"ccpm/profile"
	"ccpm/remote"
)

// Context bundles everything an operation needs besides its own arguments.
type Context struct {
	// CacheRoot is the filesystem root of the Cache Store (<cache_root> in
	// the on-disk layout).
	CacheRoot string

	// Remotes is the ordered remote registry loaded from remotes.json.
	Remotes *remote.Registry

	// Profiles holds the active host/build profiles used for settings and
	// build-requires pattern matching.
	Profiles *profile.Pair

	// Out is the logger every component writes progress and warnings to.
	Out *log.Logger

	// Background is the root context.Context for cancellation of network
	// calls and lock waits. Operations derive a child context from it, they
	// never start from context.Background() directly.
	Background context.Context
}

// New builds a Context rooted at cacheRoot with defaults for every other
// field (no remotes, empty profiles, discarded output), mainly for tests.
func New(cacheRoot string) *Context {
	return &Context{
		CacheRoot:  cacheRoot,
		Remotes:    remote.NewRegistry(nil),
		Profiles:   profile.DefaultPair(),
		Out:        log.New(nil),
		Background: context.Background(),
	}
}
