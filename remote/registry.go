// Package remote implements the ordered remote registry (remotes.json, §6)
// and the Remote Proxy (§4.5) that classifies recipe lookups into the
// statuses the Graph Builder uses to drive download and update behavior.
package remote

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// Remote is one entry of the registry.
type Remote struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	VerifySSL bool   `json:"verify_ssl"`
	Disabled  bool   `json:"disabled"`
}

// Registry is the ordered remote list; order is significant (§6: "first
// enabled entry is the default remote").
type Registry struct {
	Remotes []Remote `json:"remotes"`
}

func NewRegistry(remotes []Remote) *Registry {
	return &Registry{Remotes: remotes}
}

// ReadRegistry parses remotes.json.
func ReadRegistry(r io.Reader) (*Registry, error) {
	var reg Registry
	if err := json.NewDecoder(r).Decode(&reg); err != nil {
		return nil, errors.Wrap(err, "parsing remotes.json")
	}
	return &reg, nil
}

// WriteTo serializes the registry back to JSON.
func (r *Registry) WriteTo(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Default returns the first enabled remote, or false if none is enabled.
func (r *Registry) Default() (Remote, bool) {
	for _, rem := range r.Remotes {
		if !rem.Disabled {
			return rem, true
		}
	}
	return Remote{}, false
}

// Enabled returns every non-disabled remote, in registry order.
func (r *Registry) Enabled() []Remote {
	out := make([]Remote, 0, len(r.Remotes))
	for _, rem := range r.Remotes {
		if !rem.Disabled {
			out = append(out, rem)
		}
	}
	return out
}

// ByName looks up a remote by name, including disabled ones.
func (r *Registry) ByName(name string) (Remote, bool) {
	for _, rem := range r.Remotes {
		if rem.Name == name {
			return rem, true
		}
	}
	return Remote{}, false
}
