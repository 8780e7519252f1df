package resolve

import (
	"context"
	"path/filepath"
	"testing"

	"ccpm/cache"
)

type fakeLister struct {
	cands []Candidate
	err   error
}

func (f fakeLister) ListVersions(ctx context.Context, name, user, channel string) ([]Candidate, error) {
	return f.cands, f.err
}

func TestParseRange(t *testing.T) {
	cases := []struct {
		expr    string
		wantErr bool
	}{
		{"[>=1.0 <2.0]", false},
		{">=1.0,<2.0", false},
		{"[~1.2]", false},
		{"[]", true},
	}
	for _, tc := range cases {
		_, err := ParseRange(tc.expr)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseRange(%q) error = %v, wantErr %v", tc.expr, err, tc.wantErr)
		}
	}
}

func TestResolvePicksGreatestAdmittedVersion(t *testing.T) {
	lister := fakeLister{cands: []Candidate{
		{Version: "1.0.0", Revisions: []string{"aaa"}},
		{Version: "1.5.0", Revisions: []string{"bbb", "ccc"}},
		{Version: "2.0.0", Revisions: []string{"ddd"}},
	}}
	r := NewResolver(lister)

	version, rev, err := r.Resolve(context.Background(), "lib", "[>=1.0 <2.0]", "user", "stable")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if version != "1.5.0" {
		t.Fatalf("expected 1.5.0, got %s", version)
	}
	if rev != "ccc" {
		t.Fatalf("expected latest revision ccc, got %s", rev)
	}
}

func TestResolveMemoizes(t *testing.T) {
	calls := 0
	lister := countingLister{fakeLister{cands: []Candidate{{Version: "1.0.0", Revisions: []string{"aaa"}}}}, &calls}
	r := NewResolver(lister)

	if _, _, err := r.Resolve(context.Background(), "lib", "[>=1.0]", "user", "stable"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, _, err := r.Resolve(context.Background(), "lib", "[>=1.0]", "user", "stable"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected lister to be consulted once, got %d", calls)
	}
}

type countingLister struct {
	fakeLister
	calls *int
}

func (c countingLister) ListVersions(ctx context.Context, name, user, channel string) ([]Candidate, error) {
	*c.calls++
	return c.fakeLister.ListVersions(ctx, name, user, channel)
}

func TestResolveNotFound(t *testing.T) {
	r := NewResolver(fakeLister{})
	if _, _, err := r.Resolve(context.Background(), "lib", "[>=1.0]", "user", "stable"); err == nil {
		t.Fatal("expected NotFound error")
	}
}

// TestCacheBackedResolverResolvesFromCacheAlone exercises spec.md §8
// Scenario 1: with lib/1.0, lib/1.1, lib/2.0 in the cache and no remote, a
// root requirement on lib/[>=1.0 <2.0] must resolve to lib/1.1 straight out
// of the cache store, with no remote listers ever consulted.
func TestCacheBackedResolverResolvesFromCacheAlone(t *testing.T) {
	s, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	for _, v := range []struct{ version, rrev string }{
		{"1.0", "rev1"}, {"1.1", "rev2"}, {"2.0", "rev3"},
	} {
		ref := "lib/" + v.version + "@user/stable"
		if _, err := s.Insert(ref, v.rrev, "", "", filepath.Join(s.Root(), v.version), ""); err != nil {
			t.Fatalf("Insert %s: %v", ref, err)
		}
	}

	r := NewCacheBackedResolver(s)
	version, rev, err := r.Resolve(context.Background(), "lib", "[>=1.0 <2.0]", "user", "stable")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if version != "1.1" {
		t.Fatalf("expected 1.1 from cache, got %s", version)
	}
	if rev != "rev2" {
		t.Fatalf("expected rev2, got %s", rev)
	}
}
