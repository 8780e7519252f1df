package cache

import "path/filepath"

// Layout resolves the on-disk paths for a recipe/package tree under a cache
// root, mirroring the directory structure documented in §6.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout { return Layout{Root: root} }

func (l Layout) recipeBase(name, version, user, channel, rrev string) string {
	return filepath.Join(l.Root, "data", name, version, user, channel, rrev)
}

// Export is the content-addressed recipe export directory.
func (l Layout) Export(name, version, user, channel, rrev string) string {
	return filepath.Join(l.recipeBase(name, version, user, channel, rrev), "export")
}

// ExportSources holds large source files kept outside the recipe export
// proper.
func (l Layout) ExportSources(name, version, user, channel, rrev string) string {
	return filepath.Join(l.recipeBase(name, version, user, channel, rrev), "export_sources")
}

// Source is the expanded, non-content-addressed source tree.
func (l Layout) Source(name, version, user, channel, rrev string) string {
	return filepath.Join(l.recipeBase(name, version, user, channel, rrev), "source")
}

// DownloadExport is where downloaded recipe tarballs land before
// extraction.
func (l Layout) DownloadExport(name, version, user, channel, rrev string) string {
	return filepath.Join(l.recipeBase(name, version, user, channel, rrev), "dl", "export")
}

// Package is the built artifact tree for a given package revision.
func (l Layout) Package(name, version, user, channel, rrev, pkgid, prev string) string {
	return filepath.Join(l.recipeBase(name, version, user, channel, rrev), "package", pkgid, prev)
}

// PackageProvisional is the provisional (not-yet-promoted) package
// directory a build writes into, keyed by a random placeholder revision
// assigned at build start (§3 lifecycles).
func (l Layout) PackageProvisional(name, version, user, channel, rrev, pkgid, placeholder string) string {
	return l.Package(name, version, user, channel, rrev, pkgid, placeholder)
}

// Build is the scratch workspace a build runs in, distinct from the final
// package tree it produces.
func (l Layout) Build(name, version, user, channel, rrev, pkgid string) string {
	return filepath.Join(l.recipeBase(name, version, user, channel, rrev), "build", pkgid)
}

// LocksDir is where the Locking component keeps its per-resource lock
// files.
func (l Layout) LocksDir() string {
	return filepath.Join(l.Root, ".locks")
}
