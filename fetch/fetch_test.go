package fetch

import "testing"

func TestNewRepoRejectsUnsupportedKind(t *testing.T) {
	e := Exporter{}
	_, err := e.newRepo(Source{Kind: "cvs", Remote: "irrelevant"}, t.TempDir())
	if err == nil {
		t.Fatal("expected an error for an unsupported VCS kind")
	}
}

func TestSourceKindConstants(t *testing.T) {
	for _, k := range []Kind{Git, Hg, Bzr, Svn} {
		if k == "" {
			t.Fatal("expected a non-empty VCS kind constant")
		}
	}
}
