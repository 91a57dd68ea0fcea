package vocab

import (
	"strings"

	"sma/internal/errors"
)

// Reference identifies an entity in a given identifier space. The zero
// value is not a valid reference. References are value types and must
// not be mutated after construction; Name is display-only and excluded
// from equality.
type Reference struct {
	Prefix     string `json:"prefix"`
	Identifier string `json:"identifier"`
	Name       string `json:"name,omitempty"`
}

// NewReference constructs a reference from a prefix and local identifier.
func NewReference(prefix, identifier string) Reference {
	return Reference{Prefix: prefix, Identifier: identifier}
}

// CURIE returns the compact URI form prefix:identifier.
func (r Reference) CURIE() string {
	return r.Prefix + ":" + r.Identifier
}

// Key returns the reference's identity. Name is display-only and does
// not participate.
func (r Reference) Key() Reference {
	r.Name = ""
	return r
}

// Equal reports identity equality, ignoring display names.
func (r Reference) Equal(other Reference) bool {
	return r.Prefix == other.Prefix && r.Identifier == other.Identifier
}

// IsZero reports whether the reference is unset.
func (r Reference) IsZero() bool {
	return r.Prefix == "" && r.Identifier == ""
}

func (r Reference) String() string {
	return r.CURIE()
}

// ParseCURIE splits a compact URI at the first colon. Both sides must
// be non-empty and free of whitespace.
func ParseCURIE(curie string) (Reference, error) {
	prefix, identifier, ok := strings.Cut(curie, ":")
	if !ok || prefix == "" || identifier == "" {
		return Reference{}, errors.Newf(errors.MalformedCurie, "invalid CURIE %q", curie)
	}
	if strings.ContainsAny(prefix, " \t\n\r") || strings.ContainsAny(identifier, " \t\n\r") {
		return Reference{}, errors.Newf(errors.MalformedCurie, "whitespace in CURIE %q", curie)
	}
	return Reference{Prefix: prefix, Identifier: identifier}, nil
}

// MustParseCURIE is ParseCURIE for static vocabulary, panicking on error.
func MustParseCURIE(curie string) Reference {
	r, err := ParseCURIE(curie)
	if err != nil {
		panic(err)
	}
	return r
}

// Normalizer standardizes prefixes against an external registry. The
// core treats this as a supplied capability; a nil Normalizer leaves
// references untouched.
type Normalizer interface {
	NormalizePrefix(prefix string) (string, bool)
}

// Normalize rewrites the reference's prefix through the supplied
// normalizer, if any.
func Normalize(r Reference, n Normalizer) Reference {
	if n == nil {
		return r
	}
	if norm, ok := n.NormalizePrefix(r.Prefix); ok {
		r.Prefix = norm
	}
	return r
}

// CompareCURIE orders references by their CURIE string. Used for
// deterministic tie-breaking throughout the assembler.
func CompareCURIE(a, b Reference) int {
	return strings.Compare(a.CURIE(), b.CURIE())
}
