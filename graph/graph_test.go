package graph

import (
	"context"
	"testing"

	"ccpm/pkgstatus"
	"ccpm/profile"
	"ccpm/recipe"
	"ccpm/reference"
	"ccpm/remote"
	"ccpm/resolve"
)

type fakeProxy struct {
	paths map[string]string
}

func (f *fakeProxy) Resolve(ctx context.Context, ref string, checkUpdates, update bool, selectedRemote string) (remote.Result, error) {
	return remote.Result{Status: pkgstatus.InCache, Path: f.paths[ref]}, nil
}

type fakeLister struct{ versions []string }

func (f fakeLister) ListVersions(ctx context.Context, name, user, channel string) ([]resolve.Candidate, error) {
	var out []resolve.Candidate
	for _, v := range f.versions {
		out = append(out, resolve.Candidate{Version: v, Revisions: []string{"rev1"}})
	}
	return out, nil
}

type stubRecipe struct {
	reqs      []recipe.Requirement
	buildReqs []recipe.Requirement
	provides  []string
}

func (s *stubRecipe) SetName(string)                                   {}
func (s *stubRecipe) SetVersion(string)                                {}
func (s *stubRecipe) Configure(options, settings map[string]string) error { return nil }
func (s *stubRecipe) Requirements() ([]recipe.Requirement, error)      { return s.reqs, nil }
func (s *stubRecipe) BuildRequirements() ([]recipe.Requirement, error) { return s.buildReqs, nil }
func (s *stubRecipe) PackageInfo() (recipe.CppInfo, error) {
	return recipe.CppInfo{Provides: s.provides}, nil
}
func (s *stubRecipe) Export(string) error               { return nil }
func (s *stubRecipe) Package(string, string) error       { return nil }
func (s *stubRecipe) Build(string, string) error         { return nil }

type fakeLoader struct {
	recipes map[string]recipe.Recipe
}

func (f *fakeLoader) Load(exportDir string, ref reference.Reference) (recipe.Recipe, error) {
	if r, ok := f.recipes[ref.Name]; ok {
		return r, nil
	}
	return &stubRecipe{}, nil
}

func newTestBuilder(loader *fakeLoader, proxy *fakeProxy) *Builder {
	return &Builder{
		Proxy:    proxy,
		Resolver: resolve.NewResolver(fakeLister{versions: []string{"1.0.0", "1.5.0", "2.0.0"}}),
		Loader:   loader,
		Profiles: profile.DefaultPair(),
	}
}

func TestBuildSimpleChain(t *testing.T) {
	root := &stubRecipe{reqs: []recipe.Requirement{{Ref: "liba/[>=1.0 <2.0]@user/stable"}}}
	liba := &stubRecipe{}
	loader := &fakeLoader{recipes: map[string]recipe.Recipe{"liba": liba}}
	proxy := &fakeProxy{paths: map[string]string{"liba/1.5.0@user/stable#rev1": "/cache/liba"}}

	b := newTestBuilder(loader, proxy)
	g, err := b.Build(context.Background(), reference.MustParse("app/1.0@user/stable"), root, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(g.Nodes))
	}
	if g.Nodes[1].Ref.Name != "liba" || g.Nodes[1].Ref.Version != "1.5.0" {
		t.Fatalf("expected liba/1.5.0, got %+v", g.Nodes[1].Ref)
	}
	if g.Nodes[1].Context != Host {
		t.Fatalf("expected host context, got %s", g.Nodes[1].Context)
	}
}

func TestBuildDiamondReuse(t *testing.T) {
	root := &stubRecipe{reqs: []recipe.Requirement{
		{Ref: "liba/1.0@user/stable"},
		{Ref: "libb/1.0@user/stable"},
	}}
	liba := &stubRecipe{reqs: []recipe.Requirement{{Ref: "libc/1.0@user/stable"}}}
	libb := &stubRecipe{reqs: []recipe.Requirement{{Ref: "libc/1.0@user/stable"}}}
	libc := &stubRecipe{}
	loader := &fakeLoader{recipes: map[string]recipe.Recipe{"liba": liba, "libb": libb, "libc": libc}}
	proxy := &fakeProxy{}

	b := newTestBuilder(loader, proxy)
	g, err := b.Build(context.Background(), reference.MustParse("app/1.0@user/stable"), root, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	count := 0
	for _, n := range g.Nodes {
		if n.Ref.Name == "libc" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected libc deduplicated into one node, got %d", count)
	}
}

func TestBuildVersionConflict(t *testing.T) {
	root := &stubRecipe{reqs: []recipe.Requirement{
		{Ref: "liba/1.0@user/stable"},
		{Ref: "libc/1.0@user/stable"},
	}}
	liba := &stubRecipe{reqs: []recipe.Requirement{{Ref: "libc/2.0@user/stable"}}}
	libc := &stubRecipe{}
	loader := &fakeLoader{recipes: map[string]recipe.Recipe{"liba": liba, "libc": libc}}
	proxy := &fakeProxy{}

	b := newTestBuilder(loader, proxy)
	_, err := b.Build(context.Background(), reference.MustParse("app/1.0@user/stable"), root, nil)
	if err == nil {
		t.Fatal("expected a version conflict")
	}
}

func TestBuildBuildRequireSwitchesContext(t *testing.T) {
	root := &stubRecipe{buildReqs: []recipe.Requirement{{Ref: "cmake/3.20@user/stable"}}}
	cmake := &stubRecipe{}
	loader := &fakeLoader{recipes: map[string]recipe.Recipe{"cmake": cmake}}
	proxy := &fakeProxy{}

	b := newTestBuilder(loader, proxy)
	g, err := b.Build(context.Background(), reference.MustParse("app/1.0@user/stable"), root, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.Nodes[1].Context != Build {
		t.Fatalf("expected build context for build requirement, got %s", g.Nodes[1].Context)
	}
}

func TestBuildForceRewritesLoserRequirement(t *testing.T) {
	root := &stubRecipe{reqs: []recipe.Requirement{
		{Ref: "liba/1.0@user/stable"},
		{Ref: "libb/1.0@user/stable"},
	}}
	liba := &stubRecipe{reqs: []recipe.Requirement{{Ref: "libc/1.0@user/stable", Force: true}}}
	libb := &stubRecipe{reqs: []recipe.Requirement{{Ref: "libc/2.0@user/stable"}}}
	libc := &stubRecipe{}
	loader := &fakeLoader{recipes: map[string]recipe.Recipe{"liba": liba, "libb": libb, "libc": libc}}
	proxy := &fakeProxy{}

	b := newTestBuilder(loader, proxy)
	g, err := b.Build(context.Background(), reference.MustParse("app/1.0@user/stable"), root, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var libbNode *Node
	for _, n := range g.Nodes {
		if n.Ref.Name == "libb" {
			libbNode = n
		}
	}
	if libbNode == nil {
		t.Fatal("libb node not found")
	}
	req, ok := libbNode.TransitiveDeps["libc@user/stable"]
	if !ok {
		t.Fatal("libb has no recorded dependency on libc")
	}
	if req.Ref != "libc/1.0@user/stable" {
		t.Fatalf("expected libb's recorded libc requirement to be force-rewritten to liba's 1.0 pin, got %s", req.Ref)
	}
}

func TestBuildComputesPackageID(t *testing.T) {
	root := &stubRecipe{reqs: []recipe.Requirement{{Ref: "liba/1.0@user/stable"}}}
	liba := &stubRecipe{}
	loader := &fakeLoader{recipes: map[string]recipe.Recipe{"liba": liba}}
	proxy := &fakeProxy{}

	b := newTestBuilder(loader, proxy)
	g, err := b.Build(context.Background(), reference.MustParse("app/1.0@user/stable"), root, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var libaNode *Node
	for _, n := range g.Nodes {
		if n.Ref.Name == "liba" {
			libaNode = n
		}
	}
	if libaNode == nil {
		t.Fatal("liba node not found")
	}
	if libaNode.Ref.PackageID == "" {
		t.Fatal("expected liba to have a non-empty package_id")
	}
	if g.Root.Ref.PackageID != "" {
		t.Fatal("expected the root consumer to have no package_id")
	}
}

func TestBuildPackageIDExcludesBuildContextDirectDep(t *testing.T) {
	root := &stubRecipe{reqs: []recipe.Requirement{{Ref: "liba/1.0@user/stable"}}}
	liba := &stubRecipe{
		reqs:      []recipe.Requirement{{Ref: "libd/1.0@user/stable"}},
		buildReqs: []recipe.Requirement{{Ref: "cmake/3.20@user/stable"}},
	}
	libd := &stubRecipe{}
	cmake := &stubRecipe{}
	loader := &fakeLoader{recipes: map[string]recipe.Recipe{"liba": liba, "libd": libd, "cmake": cmake}}
	proxy := &fakeProxy{}

	b := newTestBuilder(loader, proxy)
	g, err := b.Build(context.Background(), reference.MustParse("app/1.0@user/stable"), root, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	byIdentity := map[string]*Node{}
	var libaNode *Node
	for _, n := range g.Nodes {
		byIdentity[n.identity()] = n
		if n.Ref.Name == "liba" {
			libaNode = n
		}
	}
	if libaNode == nil {
		t.Fatal("liba node not found")
	}
	cmakeNode, ok := byIdentity["cmake@user/stable"]
	if !ok || cmakeNode.Context != Build {
		t.Fatalf("expected cmake to resolve in build context, got %+v", cmakeNode)
	}

	recomputed := packageID(libaNode, byIdentity)
	if recomputed != libaNode.Ref.PackageID {
		t.Fatalf("sanity check failed: recomputed package_id %q does not match stored %q", recomputed, libaNode.Ref.PackageID)
	}

	// Mutate the build-context cmake node's resolved reference; liba's
	// package_id must not change, since a host-context consumer's
	// package_id excludes build-context direct deps (§4.7.2).
	mutated := map[string]*Node{}
	for k, v := range byIdentity {
		mutated[k] = v
	}
	cmakeCopy := *cmakeNode
	cmakeCopy.Ref.Version = "9.9"
	mutated["cmake@user/stable"] = &cmakeCopy

	if got := packageID(libaNode, mutated); got != recomputed {
		t.Fatalf("expected liba's package_id to be unaffected by a changed build-context dependency")
	}
}

func TestBuildProvidesConflict(t *testing.T) {
	root := &stubRecipe{reqs: []recipe.Requirement{
		{Ref: "liba/1.0@user/stable"},
		{Ref: "libb/1.0@user/stable"},
	}}
	liba := &stubRecipe{provides: []string{"blas"}}
	libb := &stubRecipe{provides: []string{"blas"}}
	loader := &fakeLoader{recipes: map[string]recipe.Recipe{"liba": liba, "libb": libb}}
	proxy := &fakeProxy{}

	b := newTestBuilder(loader, proxy)
	_, err := b.Build(context.Background(), reference.MustParse("app/1.0@user/stable"), root, nil)
	if err == nil {
		t.Fatal("expected a provides conflict")
	}
}
