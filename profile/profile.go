// Package profile parses host/build profiles: the named bags of settings
// (os, arch, compiler, build_type, ...) and build-requires patterns that
// drive §4.7.2 build-context propagation and §4.7.3 build-requires
// injection. Profiles are TOML files, parsed with github.com/pelletier/go-toml
// the same way golang-dep's registry_config.go reads its own TOML config:
// an intermediate raw struct tagged with `toml:"..."`, unmarshaled with
// toml.Unmarshal, wrapped errors via github.com/pkg/errors.
package profile

import (
	"bytes"
	"io"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// BuildRequire is one profile-level build-requires injection rule (§4.7.3).
// Pattern is matched against the full reference string via fnmatch-style
// globbing, except for the two special forms: "&" (the consumer only) and
// "&!" (everything except the consumer).
type BuildRequire struct {
	Pattern string `toml:"pattern"`
	Require string `toml:"require"`
}

// Profile is one named bag of settings plus build-requires patterns.
type Profile struct {
	Settings      map[string]string `toml:"settings"`
	BuildRequires []BuildRequire    `toml:"build_requires"`
}

// Get returns a setting value and whether it was present.
func (p *Profile) Get(key string) (string, bool) {
	if p == nil || p.Settings == nil {
		return "", false
	}
	v, ok := p.Settings[key]
	return v, ok
}

// Pair bundles the two profiles a graph build needs: the host profile
// (what the consumer is built for) and the build profile (what build
// requirements, e.g. a compiler, run on). A non-cross build typically uses
// identical settings for both (§4.7.2).
type Pair struct {
	Host  *Profile
	Build *Profile
}

// DefaultPair returns an empty host/build pair suitable for callers that
// haven't loaded profile files yet (mirrors golang-dep's Context zero
// value, which is valid but unconfigured).
func DefaultPair() *Pair {
	return &Pair{Host: &Profile{Settings: map[string]string{}}, Build: &Profile{Settings: map[string]string{}}}
}

type rawProfile struct {
	Settings      map[string]string `toml:"settings"`
	BuildRequires []BuildRequire    `toml:"build_requires"`
}

// Read parses a single profile TOML document.
func Read(r io.Reader) (*Profile, error) {
	buf := &bytes.Buffer{}
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, errors.Wrap(err, "reading profile")
	}
	var raw rawProfile
	if err := toml.Unmarshal(buf.Bytes(), &raw); err != nil {
		return nil, errors.Wrap(err, "parsing profile as TOML")
	}
	return &Profile{Settings: raw.Settings, BuildRequires: raw.BuildRequires}, nil
}

// MarshalTOML serializes a profile back to TOML, for round-tripping a
// profile a build chose interactively.
func (p *Profile) MarshalTOML() ([]byte, error) {
	raw := rawProfile{Settings: p.Settings, BuildRequires: p.BuildRequires}
	result, err := toml.Marshal(raw)
	return result, errors.Wrap(err, "marshaling profile to TOML")
}

// ReadPair reads a host and a build profile from two readers. When build is
// nil, the host profile is reused for both (the common non-cross case).
func ReadPair(host io.Reader, build io.Reader) (*Pair, error) {
	h, err := Read(host)
	if err != nil {
		return nil, errors.Wrap(err, "reading host profile")
	}
	if build == nil {
		return &Pair{Host: h, Build: h}, nil
	}
	b, err := Read(build)
	if err != nil {
		return nil, errors.Wrap(err, "reading build profile")
	}
	return &Pair{Host: h, Build: b}, nil
}
