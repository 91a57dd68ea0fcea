package registry

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"sma/internal/errors"
	"sma/internal/mapping"
	"sma/internal/vocab"
)

// Registry normalizes prefix synonyms to canonical form. It is loaded
// from a TOML table of synonym -> canonical pairs:
//
//	[prefixes]
//	CHEBI = "chebi"
//	MSH = "mesh"
//
// Lookups also fold case against the canonical set, so "ChEBI"
// normalizes to "chebi" without an explicit entry. The registry
// implements vocab.Normalizer and is a supplied capability: a nil
// registry leaves references untouched.
type Registry struct {
	synonyms  map[string]string
	canonical map[string]string // lowercase canonical -> canonical
}

type registryFile struct {
	Prefixes map[string]string `toml:"prefixes"`
}

// Load reads a registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.SourceUnavailable, "read registry "+path, err)
	}
	var file registryFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(errors.SourceMalformed, "parse registry "+path, err)
	}
	return New(file.Prefixes), nil
}

// New builds a registry from a synonym table.
func New(synonyms map[string]string) *Registry {
	r := &Registry{
		synonyms:  make(map[string]string, len(synonyms)),
		canonical: make(map[string]string, len(synonyms)),
	}
	for synonym, canonical := range synonyms {
		r.synonyms[synonym] = canonical
		r.canonical[strings.ToLower(canonical)] = canonical
	}
	return r
}

// NormalizePrefix implements vocab.Normalizer.
func (r *Registry) NormalizePrefix(prefix string) (string, bool) {
	if canonical, ok := r.synonyms[prefix]; ok {
		return canonical, true
	}
	if canonical, ok := r.canonical[strings.ToLower(prefix)]; ok {
		return canonical, true
	}
	return "", false
}

// NormalizeMappings rewrites every reference in a collection through
// the registry. A nil registry is the identity.
func (r *Registry) NormalizeMappings(mappings []mapping.Mapping) []mapping.Mapping {
	if r == nil {
		return mappings
	}
	out := make([]mapping.Mapping, len(mappings))
	for i, m := range mappings {
		m.Subject = vocab.Normalize(m.Subject, r)
		m.Predicate = vocab.Normalize(m.Predicate, r)
		m.Object = vocab.Normalize(m.Object, r)
		out[i] = m
	}
	return out
}
