// Package pkgstatus defines the recipe_status enumeration shared by the
// Remote Proxy (which produces it) and the Graph Builder (which stores it
// on each Node), grounded on the status reporting golang-dep's own
// status.go does for project-level install states, generalized to the
// §4.5 decision table.
package pkgstatus

// Status is a Node's recipe_status (§3 Node).
type Status int

const (
	// Consumer is the root node itself: it is the thing being built, not a
	// dependency fetched from anywhere.
	Consumer Status = iota
	// Virtual marks a node that contributes no binary, only constraints.
	Virtual
	// Editable marks a node pointed at a local, uncached working copy.
	Editable
	// Downloaded marks a node that was not previously in the cache and was
	// fetched fresh.
	Downloaded
	// InCache marks a node served entirely from the local cache, no
	// network activity.
	InCache
	// Updated marks a node whose local cache entry was replaced because a
	// newer remote revision was found and update=true.
	Updated
	// Newer marks a node whose local cache entry is newer than the remote
	// (a report-only condition).
	Newer
	// Updateable marks a node where the remote has a newer revision but
	// update=false, so the local one was kept (a report-only condition).
	Updateable
	// NotInRemote marks a node in cache whose remote manifest could not be
	// fetched.
	NotInRemote
	// NoRemote marks a node in cache with no known origin remote.
	NoRemote
)

func (s Status) String() string {
	switch s {
	case Consumer:
		return "CONSUMER"
	case Virtual:
		return "VIRTUAL"
	case Editable:
		return "EDITABLE"
	case Downloaded:
		return "DOWNLOADED"
	case InCache:
		return "IN_CACHE"
	case Updated:
		return "UPDATED"
	case Newer:
		return "NEWER"
	case Updateable:
		return "UPDATEABLE"
	case NotInRemote:
		return "NOT_IN_REMOTE"
	case NoRemote:
		return "NO_REMOTE"
	default:
		return "UNKNOWN"
	}
}

// IsWarning reports whether s is a report-only condition rather than a
// fatal one (§7 Propagation: "distinguishes fatal ... from warnings
// (updateable, newer-than-remote)").
func (s Status) IsWarning() bool {
	return s == Updateable || s == Newer
}
