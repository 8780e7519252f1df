// Package recipe defines the fixed capability interface the Graph Builder
// consumes (§9 Design Notes, "Dynamic recipe capabilities"). Recipes are
// opaque, possibly scripted objects in the source tree; the core never
// inspects their internals, it only calls the methods below, the same way
// golang-dep's gps.ProjectAnalyzer treats a project's manifest/lock files
// through a narrow interface rather than parsing arbitrary Go source
// itself.
package recipe

import (
	"ccpm/errs"
	"ccpm/reference"
)

// Requirement is one dependency declared by a recipe's requirements() or
// build_requirements() capability (§3 Requirement).
type Requirement struct {
	// Ref may carry a bracket version range (e.g. "lib/[>=1.0 <2.0]")
	// rather than a concrete version; the Graph Builder resolves it
	// via the Version Resolver (§4.6) before creating or reusing a node.
	Ref      string
	Build    bool
	Override bool
	Force    bool

	// Options pins explicit option values the requiring recipe wants for
	// this dependency (e.g. a parent recipe's default_options targeting a
	// specific requirement). Compared against an already-present node's
	// options during conflict analysis (§4.7.1).
	Options map[string]string
}

// CppInfo is the subset of package_info() output the core cares about:
// enough to compute a package_id and to hand back to the external build
// driver. Actual consumption of include/lib paths by build-tool wrappers is
// out of scope (§1); this is a pass-through value.
type CppInfo struct {
	Includes []string
	Libs     []string
	Defines  []string

	// Provides lists identifiers this package claims to satisfy besides its
	// own name, validated for global uniqueness once the graph is fully
	// expanded (§4.7 step 5).
	Provides []string
}

// Recipe is the fixed capability interface (§9): "set_name()",
// "set_version()", "configure(options, settings)",
// "requirements() -> [Requirement]", "build_requirements() -> [Requirement]",
// "package_info() -> CppInfo", and the "export()/package()/build()"
// lifecycle hooks. Implementations may back this with any scripting engine
// or a declarative manifest; the resolver only ever calls through this
// interface.
type Recipe interface {
	SetName(name string)
	SetVersion(version string)

	// Configure applies the given options and settings, mutating internal
	// recipe state used by later capability calls (§4.7.2).
	Configure(options, settings map[string]string) error

	// Requirements returns this recipe's non-build dependencies.
	Requirements() ([]Requirement, error)

	// BuildRequirements returns this recipe's build-context dependencies
	// (§4.7.2, §4.7.3).
	BuildRequirements() ([]Requirement, error)

	PackageInfo() (CppInfo, error)

	Export(destDir string) error
	Package(buildDir, packageDir string) error
	Build(sourceDir, buildDir string) error
}

// Loader loads a Recipe from an export directory. The recipe scripting
// language itself is out of scope (§1); Loader is the seam a concrete
// scripting engine, embedded interpreter, or declarative-manifest reader
// plugs into.
type Loader interface {
	Load(exportDir string, ref reference.Reference) (Recipe, error)
}

// Invoke calls fn, wrapping any error as a *errs.RecipeError tagged with
// which capability failed, matching the §7 "RecipeError — recipe
// capability raised during configure/requirements" contract.
func Invoke(ref reference.Reference, capability string, fn func() error) error {
	if err := fn(); err != nil {
		return &errs.RecipeError{Reference: ref.String(), Capability: capability, Cause: err}
	}
	return nil
}
