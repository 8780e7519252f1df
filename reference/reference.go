// Package reference implements the normalized identity of a recipe or
// package: (name, version, user, channel, recipe_revision, package_id,
// package_revision), their textual grammar, parsing, and comparison. It
// does not derive a fully-pinned reference from a partial one; this
// package has no lookup of versions or revisions.
package reference

import (
	"fmt"
	"strings"
)

// Reference is a value type identifying a recipe or package. Two references
// compare equal (Equal) iff every field compares equal; an unset (empty
// string) field equals another unset field and is distinct from any set
// value.
type Reference struct {
	Name    string
	Version string
	User    string
	Channel string

	RecipeRevision  string
	PackageID       string
	PackageRevision string
}

// HasUserChannel reports whether both User and Channel are set. Conan-style
// references treat user/channel as a pair; one without the other is not a
// valid reference.
func (r Reference) HasUserChannel() bool { return r.User != "" && r.Channel != "" }

// IsPackageReference reports whether r carries a PackageID, making it a
// package reference rather than a bare recipe reference.
func (r Reference) IsPackageReference() bool { return r.PackageID != "" }

// Validate enforces the invariants from the data model: a package_revision
// requires a package_id, which requires a recipe_revision.
func (r Reference) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("reference has no name")
	}
	if r.Version == "" {
		return fmt.Errorf("reference %s has no version", r.Name)
	}
	if r.PackageRevision != "" && r.PackageID == "" {
		return fmt.Errorf("reference %s has package_revision but no package_id", r.Name)
	}
	if (r.PackageID != "" || r.PackageRevision != "") && r.RecipeRevision == "" {
		return fmt.Errorf("reference %s has package_id/package_revision but no recipe_revision", r.Name)
	}
	if (r.User == "") != (r.Channel == "") {
		return fmt.Errorf("reference %s has user or channel set without the other", r.Name)
	}
	return nil
}

// Equal compares every field for exact equality. Unlike Validate, Equal is
// deliberately permissive about malformed references so it can be used as a
// map/set key comparison without surprises.
func (r Reference) Equal(o Reference) bool {
	return r.Name == o.Name &&
		r.Version == o.Version &&
		r.User == o.User &&
		r.Channel == o.Channel &&
		r.RecipeRevision == o.RecipeRevision &&
		r.PackageID == o.PackageID &&
		r.PackageRevision == o.PackageRevision
}

// RecipeRef returns the recipe-reference projection of r: everything but
// PackageID and PackageRevision.
func (r Reference) RecipeRef() Reference {
	r.PackageID = ""
	r.PackageRevision = ""
	return r
}

// NameUserChannel returns the identity used for diamond detection in the
// graph builder: (name, user, channel), ignoring version and revisions.
func (r Reference) NameUserChannel() string {
	return fmt.Sprintf("%s@%s/%s", r.Name, r.User, r.Channel)
}

// String renders r using the grammar
// name/version@user/channel#recipe_revision:package_id#package_revision,
// with each optional segment omitted when unset. This mirrors
// ProjectIdentifier.String in the teacher's gps package, adapted to the
// richer Conan-style reference grammar documented in original_source's
// ConanReference model.
func (r Reference) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteByte('/')
	b.WriteString(r.Version)
	if r.HasUserChannel() {
		b.WriteByte('@')
		b.WriteString(r.User)
		b.WriteByte('/')
		b.WriteString(r.Channel)
	}
	if r.RecipeRevision != "" {
		b.WriteByte('#')
		b.WriteString(r.RecipeRevision)
	}
	if r.PackageID != "" {
		b.WriteByte(':')
		b.WriteString(r.PackageID)
		if r.PackageRevision != "" {
			b.WriteByte('#')
			b.WriteString(r.PackageRevision)
		}
	}
	return b.String()
}

// FullStr is the canonical resource string used as a lock key (§4.2:
// "typically ref.full_str()").
func (r Reference) FullStr() string { return r.String() }

// Parse parses the reference grammar documented on Reference.String. It is
// the inverse of String: Parse(r.String()) must equal r for any valid r.
func Parse(s string) (Reference, error) {
	var r Reference
	rest := s

	if i := strings.IndexByte(rest, ':'); i >= 0 {
		pkgPart := rest[i+1:]
		rest = rest[:i]
		if j := strings.IndexByte(pkgPart, '#'); j >= 0 {
			r.PackageID = pkgPart[:j]
			r.PackageRevision = pkgPart[j+1:]
		} else {
			r.PackageID = pkgPart
		}
		if r.PackageID == "" {
			return Reference{}, fmt.Errorf("reference %q has empty package_id after ':'", s)
		}
	}

	if i := strings.IndexByte(rest, '#'); i >= 0 {
		r.RecipeRevision = rest[i+1:]
		rest = rest[:i]
		if r.RecipeRevision == "" {
			return Reference{}, fmt.Errorf("reference %q has empty recipe_revision after '#'", s)
		}
	}

	if i := strings.IndexByte(rest, '@'); i >= 0 {
		uc := rest[i+1:]
		rest = rest[:i]
		parts := strings.SplitN(uc, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return Reference{}, fmt.Errorf("reference %q has malformed user/channel %q", s, uc)
		}
		r.User, r.Channel = parts[0], parts[1]
	}

	nv := strings.SplitN(rest, "/", 2)
	if len(nv) != 2 || nv[0] == "" || nv[1] == "" {
		return Reference{}, fmt.Errorf("reference %q is missing name/version", s)
	}
	r.Name, r.Version = nv[0], nv[1]

	return r, r.Validate()
}

// MustParse is Parse but panics on error; reserved for literal references in
// tests and constant-like initialization.
func MustParse(s string) Reference {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}
