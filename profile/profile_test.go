package profile

import (
	"strings"
	"testing"
)

const sampleProfile = `
[settings]
os = "Linux"
arch = "x86_64"
compiler = "gcc"
build_type = "Release"

[[build_requires]]
pattern = "&"
require = "cmake/3.20"

[[build_requires]]
pattern = "*"
require = "ninja/1.11"
`

func TestReadProfile(t *testing.T) {
	p, err := Read(strings.NewReader(sampleProfile))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v, ok := p.Get("compiler"); !ok || v != "gcc" {
		t.Fatalf("expected compiler=gcc, got %q ok=%v", v, ok)
	}
	if len(p.BuildRequires) != 2 {
		t.Fatalf("expected 2 build_requires, got %d", len(p.BuildRequires))
	}
	if p.BuildRequires[0].Pattern != "&" || p.BuildRequires[0].Require != "cmake/3.20" {
		t.Fatalf("unexpected first build_require: %+v", p.BuildRequires[0])
	}
}

func TestReadPairReusesHostWhenBuildNil(t *testing.T) {
	pair, err := ReadPair(strings.NewReader(sampleProfile), nil)
	if err != nil {
		t.Fatalf("ReadPair: %v", err)
	}
	if pair.Host != pair.Build {
		t.Fatalf("expected build profile to alias host when not supplied")
	}
}

func TestDefaultPairIsEmptyNotNil(t *testing.T) {
	pair := DefaultPair()
	if pair.Host == nil || pair.Build == nil {
		t.Fatal("DefaultPair must never return nil profiles")
	}
	if _, ok := pair.Host.Get("os"); ok {
		t.Fatal("expected no settings in a default profile")
	}
}
