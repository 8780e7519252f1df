// Package boltkeys builds the composite, sortable keys the Cache Store uses
// inside its bbolt bucket. Grounded on github.com/jmank88/nuts, vendored by
// the teacher to pack monotonically increasing values into the fewest
// sortable bytes (used there for gps's bolt-backed source cache keys); here
// it packs each row's insertion sequence number into a fixed-width,
// lexicographically-ordered suffix. Lookups of "the row with the greatest
// timestamp" (§4.1 latest_recipe_revision/latest_package_revision) still
// scan every row under the reference prefix and compare Row.Timestamp.
package boltkeys

import (
	"strings"

	"github.com/jmank88/nuts"
)

// seqWidth is wide enough to hold any uint64 sequence number without
// truncation; using a fixed width (rather than nuts' minimal variable width)
// is what makes byte-lexicographic order match numeric order across the
// whole lifetime of a cache store.
const seqWidth = 8

// RowKey builds the primary key for a cache row: a human-readable,
// '\x01'-joined identity prefix (reference, rrev, pkgid, prev - empty segments
// kept positional so NULs stay distinct, per §3's "NULLs distinct") followed
// by a fixed-width encoding of seq, the row's monotonic insertion sequence
// number. Appending seq guarantees key uniqueness even across an update
// that changes path/remote but not identity, and gives cursor iteration a
// stable, chronological tie-break.
func RowKey(reference, rrev, pkgid, prev string, seq uint64) []byte {
	prefix := IdentityPrefix(reference, rrev, pkgid, prev)
	key := make(nuts.Key, seqWidth)
	key.Put(seq)
	out := make([]byte, 0, len(prefix)+1+seqWidth)
	out = append(out, prefix...)
	out = append(out, '\x00')
	out = append(out, key...)
	return out
}

// IdentityPrefix builds the identity portion of a row key for one exact
// (reference, rrev, pkgid, prev) tuple; the store seeks to it for
// exact-match lookups (get, insert, update, remove). The list_* queries
// scan by the bare reference prefix instead.
func IdentityPrefix(reference, rrev, pkgid, prev string) []byte {
	// '\x01' can't appear in a reference string (see reference.Parse's
	// grammar), so it's safe as a field separator distinct from the
	// '\x00' terminator RowKey appends after the full prefix.
	return []byte(strings.Join([]string{reference, rrev, pkgid, prev}, "\x01"))
}

