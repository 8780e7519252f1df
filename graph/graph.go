// Package graph implements the Graph Builder (§4.7): breadth-first
// expansion of a root requirement set into a fully pinned dependency DAG,
// diamond detection with conflict analysis, build-context propagation, and
// build-requires injection. Grounded on the teacher's own solver
// (golang-dep's solver.go/satisfy.go), which resolves a project's
// transitive imports through a similar "pop a candidate, check it against
// everything already selected" loop, generalized here from Go import paths
// to versioned C/C++ recipe references.
package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path"
	"sort"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"

	"ccpm/errs"
	"ccpm/pkgstatus"
	"ccpm/profile"
	"ccpm/recipe"
	"ccpm/reference"
	"ccpm/remote"
	"ccpm/resolve"
)

// Context is the build-time/host-time classification a node carries
// (§4.7.2).
type Context string

const (
	Host  Context = "host"
	Build Context = "build"
)

// Node is a vertex in the dependency graph (§3 Node).
type Node struct {
	Ref      reference.Reference
	Context  Context
	Status   pkgstatus.Status
	Remote   string
	Options  map[string]string
	Settings map[string]string
	Recipe   recipe.Recipe

	// Origin is the requirement that created this node; it is not updated
	// when later edges reuse the node. Used as R_prev during conflict
	// analysis (§4.7.1).
	Origin recipe.Requirement

	// TransitiveDeps maps every dependency identity reachable from this
	// node to the requirement edge that reached it, the node's own
	// "transitive_deps" ownership (§3 Ownership).
	TransitiveDeps map[string]recipe.Requirement

	// DirectDeps is the ordered list of identities this node requires
	// directly (via requirements()/build_requirements(), excluding
	// overrides and self-loops), the "direct-dependency-refs" input to
	// this node's package_id (§3 Data Model, §4.7.2).
	DirectDeps []string

	// ancestors is the chain of identities from the root down to (but not
	// including) this node, used for cycle detection.
	ancestors []string
}

func (n *Node) identity() string { return n.Ref.NameUserChannel() }

// addDirectDep records identity as one of n's direct dependencies, once.
func (n *Node) addDirectDep(identity string) {
	for _, d := range n.DirectDeps {
		if d == identity {
			return
		}
	}
	n.DirectDeps = append(n.DirectDeps, identity)
}

// Graph is the fully (or partially, on error) expanded DAG.
type Graph struct {
	Root  *Node
	Nodes []*Node
}

// RemoteResolver is the subset of *remote.Proxy the Graph Builder needs,
// kept as an interface so tests can substitute a fake without standing up a
// real cache store (mirroring golang-dep's SourceManager seam in solver.go).
type RemoteResolver interface {
	Resolve(ctx context.Context, ref string, checkUpdates, update bool, selectedRemote string) (remote.Result, error)
}

// Builder drives the expansion algorithm described in §4.7.
type Builder struct {
	Proxy    RemoteResolver
	Resolver *resolve.Resolver
	Loader   recipe.Loader
	Profiles *profile.Pair

	CheckUpdates   bool
	Update         bool
	SelectedRemote string
}

type queueItem struct {
	req  recipe.Requirement
	from *Node
}

// Build expands rootRef (already loaded by the external caller; loading the
// root project's own recipe is outside this package's concern, see §1
// "command-line frontend... out of scope") into a full graph.
func (b *Builder) Build(ctx context.Context, rootRef reference.Reference, rootRecipe recipe.Recipe, options map[string]string) (*Graph, error) {
	root := &Node{
		Ref:            rootRef,
		Context:        Host,
		Status:         pkgstatus.Consumer,
		Options:        options,
		Settings:       b.hostSettings(),
		Recipe:         rootRecipe,
		TransitiveDeps: map[string]recipe.Requirement{},
	}

	if err := recipe.Invoke(rootRef, "configure", func() error {
		return rootRecipe.Configure(options, root.Settings)
	}); err != nil {
		return nil, err
	}

	g := &Graph{Root: root, Nodes: []*Node{root}}
	byIdentity := map[string]*Node{root.identity(): root}
	overrides := map[string]recipe.Requirement{}
	forces := map[string]recipe.Requirement{}

	reqs, err := b.nodeRequirements(root)
	if err != nil {
		return nil, err
	}

	var queue []queueItem
	for _, r := range reqs {
		queue = append(queue, queueItem{req: r, from: root})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		// reference.Parse tolerates a bracket range in the version field, so
		// this recovers (name, user, channel) identity whether req.Ref pins
		// a concrete version or carries a range to resolve later.
		childRef := rangeIdentity(item.req.Ref)
		identity := childRef.NameUserChannel()

		if item.req.Override {
			// An override never creates or expands a node; it only pins the
			// reference any later edge to this identity must match (§4.7.1
			// "R_prev.override is set -> rewrite R_new.ref"), recorded on
			// the parent's transitive map so it can be stripped at the end
			// (§4.7 step 4).
			overrides[identity] = item.req
			item.from.TransitiveDeps[identity] = item.req
			continue
		}

		// Self-loop: a build requirement injected by a node into its own
		// build context is silently dropped (§4.7.3).
		if identity == item.from.identity() {
			continue
		}
		// Cycle: the target is an ancestor of the requiring node.
		if contains(item.from.ancestors, identity) {
			return nil, &errs.VersionConflict{Name: childRef.Name, EndpointA: item.from.identity(), EndpointB: identity, Loop: true}
		}

		effective := item.req
		if ov, ok := overrides[identity]; ok {
			effective.Ref = ov.Ref
		} else if f, ok := forces[identity]; ok {
			// §4.7.1: "If R_prev.force ... is set -> rewrite R_new.ref to
			// match R_prev.ref" - R_prev here is the requirement that first
			// won this identity with Force set, recorded below when that
			// node was created.
			effective.Ref = f.Ref
		}

		if existing, ok := byIdentity[identity]; ok {
			if err := b.reconcile(existing, effective, overrides[identity]); err != nil {
				return nil, err
			}
			existing.TransitiveDeps[identity] = effective
			item.from.TransitiveDeps[identity] = effective
			item.from.addDirectDep(identity)
			continue
		}

		child, childReqs, err := b.expand(ctx, effective, item.from)
		if err != nil {
			return nil, err
		}
		byIdentity[identity] = child
		g.Nodes = append(g.Nodes, child)
		item.from.TransitiveDeps[identity] = effective
		item.from.addDirectDep(identity)
		if effective.Force {
			forces[identity] = effective
		}

		for _, r := range childReqs {
			queue = append(queue, queueItem{req: r, from: child})
		}
	}

	for _, n := range g.Nodes {
		if n == root {
			continue
		}
		n.Ref.PackageID = packageID(n, byIdentity)
	}

	for _, n := range g.Nodes {
		stripOverrides(n.TransitiveDeps)
	}

	if err := validateProvides(g); err != nil {
		return nil, err
	}

	return g, nil
}

// expand resolves a new requirement into a concrete node, calling the
// Remote Proxy and loading its recipe (§4.7 step 3c).
func (b *Builder) expand(ctx context.Context, req recipe.Requirement, from *Node) (*Node, []recipe.Requirement, error) {
	parsed, isRange := splitRange(req.Ref)
	var finalRef string
	if isRange {
		version, rrev, err := b.Resolver.Resolve(ctx, parsed.Name, parsed.Version, parsed.User, parsed.Channel)
		if err != nil {
			return nil, nil, err
		}
		parsed.Version = version
		parsed.RecipeRevision = rrev
		finalRef = parsed.String()
	} else {
		finalRef = req.Ref
	}

	result, err := b.Proxy.Resolve(ctx, finalRef, b.CheckUpdates, b.Update, b.SelectedRemote)
	if err != nil {
		return nil, nil, err
	}

	ref, err := reference.Parse(finalRef)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "parsing resolved reference %s", finalRef)
	}

	r, err := b.Loader.Load(result.Path, ref)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "loading recipe %s", ref)
	}

	ctxKind := childContext(from.Context, req.Build)
	settings := b.hostSettings()
	if ctxKind == Build {
		settings = b.buildSettings()
	}

	node := &Node{
		Ref:            ref,
		Context:        ctxKind,
		Status:         result.Status,
		Remote:         result.Remote,
		Options:        req.Options,
		Settings:       settings,
		Recipe:         r,
		Origin:         req,
		TransitiveDeps: map[string]recipe.Requirement{},
		ancestors:      append(append([]string(nil), from.ancestors...), from.identity()),
	}

	if err := recipe.Invoke(ref, "configure", func() error {
		return r.Configure(req.Options, settings)
	}); err != nil {
		return nil, nil, err
	}

	reqs, err := b.nodeRequirements(node)
	if err != nil {
		return nil, nil, err
	}
	return node, reqs, nil
}

// nodeRequirements gathers a node's requirements() and build_requirements(),
// plus any profile build-requires patterns matching its reference (§4.7.3).
func (b *Builder) nodeRequirements(n *Node) ([]recipe.Requirement, error) {
	var out []recipe.Requirement

	if err := recipe.Invoke(n.Ref, "requirements", func() error {
		rs, err := n.Recipe.Requirements()
		if err != nil {
			return err
		}
		out = append(out, rs...)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := recipe.Invoke(n.Ref, "build_requirements", func() error {
		rs, err := n.Recipe.BuildRequirements()
		if err != nil {
			return err
		}
		for i := range rs {
			rs[i].Build = true
		}
		out = append(out, rs...)
		return nil
	}); err != nil {
		return nil, err
	}

	out = append(out, b.injectedBuildRequires(n)...)
	return out, nil
}

// injectedBuildRequires applies profile-level build-requires patterns
// (§4.7.3): "&" matches the consumer (root) only, "&!" matches everything
// except the consumer, anything else is an fnmatch-style glob against the
// full reference string.
func (b *Builder) injectedBuildRequires(n *Node) []recipe.Requirement {
	if b.Profiles == nil {
		return nil
	}
	isConsumer := n.Status == pkgstatus.Consumer
	var out []recipe.Requirement
	for _, pattern := range buildRequirePatterns(b.Profiles) {
		matched := false
		switch pattern.Pattern {
		case "&":
			matched = isConsumer
		case "&!":
			matched = !isConsumer
		default:
			ok, _ := path.Match(pattern.Pattern, n.Ref.String())
			matched = ok
		}
		if !matched {
			continue
		}
		out = append(out, recipe.Requirement{Ref: pattern.Require, Build: true})
	}
	return out
}

func buildRequirePatterns(pair *profile.Pair) []profile.BuildRequire {
	var out []profile.BuildRequire
	if pair.Host != nil {
		out = append(out, pair.Host.BuildRequires...)
	}
	if pair.Build != nil && pair.Build != pair.Host {
		out = append(out, pair.Build.BuildRequires...)
	}
	return out
}

func (b *Builder) hostSettings() map[string]string {
	if b.Profiles == nil || b.Profiles.Host == nil {
		return map[string]string{}
	}
	return b.Profiles.Host.Settings
}

func (b *Builder) buildSettings() map[string]string {
	if b.Profiles == nil || b.Profiles.Build == nil {
		return map[string]string{}
	}
	return b.Profiles.Build.Settings
}

// childContext implements §4.7.2.
func childContext(parent Context, isBuildRequire bool) Context {
	if !isBuildRequire {
		return parent
	}
	return Build
}

// reconcile implements §4.7.1's conflict rules for an edge landing on an
// already-present node. override, if non-zero, is the requirement that
// pinned this identity via an earlier override/force edge (R_prev).
func (b *Builder) reconcile(existing *Node, req recipe.Requirement, override recipe.Requirement) error {
	prev := existing.Origin
	if prev.Force || prev.Override || override.Override || override.Force {
		// Downstream wins; nothing to check, req.Ref was already rewritten
		// to match the override before reconcile was called.
	} else {
		newRef, newIsRange := splitRange(req.Ref)
		existingConcrete := existing.Ref

		switch {
		case newIsRange:
			v, err := resolve.ParseRange(newRef.Version)
			if err != nil {
				return errors.Wrapf(err, "parsing range %s", req.Ref)
			}
			ev, err := semver.NewVersion(existingConcrete.Version)
			if err != nil || v.Admits(ev) != nil {
				return &errs.VersionConflict{Name: existingConcrete.Name, EndpointA: existingConcrete.Version, EndpointB: req.Ref}
			}
		default:
			if newRef.Version != existingConcrete.Version {
				return &errs.VersionConflict{Name: existingConcrete.Name, EndpointA: existingConcrete.Version, EndpointB: newRef.Version}
			}
			if newRef.RecipeRevision != "" && existingConcrete.RecipeRevision != "" && newRef.RecipeRevision != existingConcrete.RecipeRevision {
				return &errs.VersionConflict{Name: existingConcrete.Name, EndpointA: existingConcrete.RecipeRevision, EndpointB: newRef.RecipeRevision}
			}
		}
	}

	for opt, val := range req.Options {
		if existingVal, ok := existing.Options[opt]; ok && existingVal != val {
			return &errs.OptionConflict{Name: existing.Ref.Name, Option: opt, ValueA: existingVal, ValueB: val}
		}
	}
	return nil
}

// validateProvides implements §4.7 step 5: no two packages may claim the
// same `provides` identifier.
func validateProvides(g *Graph) error {
	owners := map[string]string{}
	for _, n := range g.Nodes {
		if n.Recipe == nil {
			continue
		}
		info, err := n.Recipe.PackageInfo()
		if err != nil {
			return &errs.RecipeError{Reference: n.Ref.String(), Capability: "package_info", Cause: err}
		}
		for _, p := range info.Provides {
			if owner, ok := owners[p]; ok && owner != n.Ref.String() {
				return &errs.ProvidesConflict{Provides: p, PackageA: owner, PackageB: n.Ref.String()}
			}
			owners[p] = n.Ref.String()
		}
	}
	return nil
}

// stripOverrides removes override-only requirements from a node's
// transitive map (§4.7 step 4): the requirement's job was only to pin a
// version, it contributes no actual dependency edge.
func stripOverrides(deps map[string]recipe.Requirement) {
	for k, r := range deps {
		if r.Override {
			delete(deps, k)
		}
	}
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// splitRange reports whether ref's version field is a bracket range rather
// than a concrete version, returning the parsed reference either way.
func splitRange(ref string) (reference.Reference, bool) {
	parsed := rangeIdentity(ref)
	return parsed, isRangeExpr(parsed.Version)
}

func isRangeExpr(v string) bool {
	return len(v) > 0 && v[0] == '['
}

// rangeIdentity parses "name/version[@user/channel]" permissively, allowing
// the version segment to be either a concrete version or a bracket range
// (reference.Parse's grammar doesn't care which).
func rangeIdentity(ref string) reference.Reference {
	r, err := reference.Parse(ref)
	if err != nil {
		return reference.Reference{}
	}
	return r
}

// packageID computes n's package_id: a hash of (settings, options,
// direct-dependency-refs) per §3 Data Model, honoring §4.7.2's "build-context
// nodes never contribute to a host-context consumer's package_id" by
// dropping any direct dependency that resolved into the build context when
// n itself is a host-context node.
func packageID(n *Node, byIdentity map[string]*Node) string {
	h := sha256.New()
	writeSortedMap(h, n.Settings)
	writeSortedMap(h, n.Options)

	deps := make([]string, 0, len(n.DirectDeps))
	for _, identity := range n.DirectDeps {
		child, ok := byIdentity[identity]
		if !ok {
			continue
		}
		if n.Context == Host && child.Context == Build {
			continue
		}
		deps = append(deps, child.Ref.String())
	}
	sort.Strings(deps)
	for _, d := range deps {
		io.WriteString(h, d)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeSortedMap hashes m's entries in key-sorted order so package_id is
// independent of map iteration order.
func writeSortedMap(h io.Writer, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		io.WriteString(h, k)
		io.WriteString(h, "=")
		io.WriteString(h, m[k])
		h.Write([]byte{0})
	}
}

// sortedKeys returns a TransitiveDeps map's keys in sorted order, for
// deterministic iteration.
func sortedKeys(m map[string]recipe.Requirement) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
