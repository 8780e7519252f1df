package reference

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"lib/1.0",
		"lib/1.0@user/stable",
		"lib/1.0@user/stable#abc123",
		"lib/1.0@user/stable#abc123:pkgid456",
		"lib/1.0@user/stable#abc123:pkgid456#prev789",
	}
	for _, s := range cases {
		r, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := r.String(); got != s {
			t.Errorf("Parse(%q).String() = %q, want %q", s, got, s)
		}
	}
}

func TestValidateRejectsPrevWithoutPkgID(t *testing.T) {
	// Can't express prev without pkgid in the grammar itself (no separator),
	// but Validate should still reject a hand-built Reference like this.
	r := Reference{Name: "lib", Version: "1.0", RecipeRevision: "abc", PackageRevision: "prev"}
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation error for package_revision without package_id")
	}
}

func TestValidateRejectsPkgIDWithoutRecipeRevision(t *testing.T) {
	r := Reference{Name: "lib", Version: "1.0", PackageID: "pkgid"}
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation error for package_id without recipe_revision")
	}
}

func TestEqualTreatsUnsetFieldsConsistently(t *testing.T) {
	a := MustParse("lib/1.0")
	b := MustParse("lib/1.0")
	if !a.Equal(b) {
		t.Fatal("expected equal references to compare equal")
	}
	c := MustParse("lib/1.0@user/stable")
	if a.Equal(c) {
		t.Fatal("expected references differing in user/channel to compare unequal")
	}
}

func TestNameUserChannelIgnoresVersionAndRevisions(t *testing.T) {
	a := MustParse("lib/1.0@user/stable#abc123")
	b := MustParse("lib/2.0@user/stable#def456")
	if a.NameUserChannel() != b.NameUserChannel() {
		t.Fatalf("expected matching (name,user,channel) identity, got %q vs %q", a.NameUserChannel(), b.NameUserChannel())
	}
}

func TestParseInvalidGrammar(t *testing.T) {
	invalid := []string{
		"",
		"lib",
		"lib/1.0@user",
		"lib/1.0@/stable",
		"lib/1.0#",
		"lib/1.0:",
	}
	for _, s := range invalid {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", s)
		}
	}
}
