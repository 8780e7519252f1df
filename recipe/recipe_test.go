package recipe

import (
	"errors"
	"testing"

	"ccpm/reference"
	errspkg "ccpm/errs"
)

type fakeRecipe struct {
	name, version string
	opts, sets    map[string]string
	reqs          []Requirement
	buildReqs     []Requirement
	failConfigure bool
}

func (f *fakeRecipe) SetName(name string)       { f.name = name }
func (f *fakeRecipe) SetVersion(version string) { f.version = version }

func (f *fakeRecipe) Configure(options, settings map[string]string) error {
	if f.failConfigure {
		return errors.New("boom")
	}
	f.opts, f.sets = options, settings
	return nil
}

func (f *fakeRecipe) Requirements() ([]Requirement, error)      { return f.reqs, nil }
func (f *fakeRecipe) BuildRequirements() ([]Requirement, error) { return f.buildReqs, nil }
func (f *fakeRecipe) PackageInfo() (CppInfo, error)             { return CppInfo{}, nil }
func (f *fakeRecipe) Export(destDir string) error               { return nil }
func (f *fakeRecipe) Package(buildDir, packageDir string) error { return nil }
func (f *fakeRecipe) Build(sourceDir, buildDir string) error    { return nil }

func TestInvokeWrapsCapabilityError(t *testing.T) {
	r := &fakeRecipe{failConfigure: true}
	ref := reference.MustParse("lib/1.0@user/stable")

	err := Invoke(ref, "configure", func() error {
		return r.Configure(nil, nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var recipeErr *errspkg.RecipeError
	if !errors.As(err, &recipeErr) {
		t.Fatalf("expected *errs.RecipeError, got %T", err)
	}
	if recipeErr.Capability != "configure" {
		t.Fatalf("expected capability configure, got %s", recipeErr.Capability)
	}
}

func TestInvokePassesThroughOnSuccess(t *testing.T) {
	r := &fakeRecipe{}
	ref := reference.MustParse("lib/1.0@user/stable")
	err := Invoke(ref, "configure", func() error {
		return r.Configure(map[string]string{"shared": "True"}, nil)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.opts["shared"] != "True" {
		t.Fatalf("expected options applied")
	}
}

var _ Recipe = (*fakeRecipe)(nil)
