package mapping

import (
	"crypto/sha256"
	"encoding/hex"

	"sma/internal/errors"
	"sma/internal/vocab"
)

// TripleKey is a mapping's identity: the subject, predicate, and
// object stripped of display names. It is comparable and used as a map
// key throughout the assembler.
type TripleKey struct {
	Subject   vocab.Reference
	Predicate vocab.Reference
	Object    vocab.Reference
}

// String renders the triple for hashing and diagnostics.
func (k TripleKey) String() string {
	return k.Subject.CURIE() + " " + k.Predicate.CURIE() + " " + k.Object.CURIE()
}

// Hash returns a stable content hash of the triple, used as the
// exported identifier in the property-graph export.
func (k TripleKey) Hash() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}

// Inverted swaps subject and object under the given predicate.
func (k TripleKey) Inverted(predicate vocab.Reference) TripleKey {
	return TripleKey{Subject: k.Object, Predicate: predicate.Key(), Object: k.Subject}
}

// Mapping asserts that subject and object stand in the relation named
// by the predicate, supported by a non-empty evidence set. Two
// mappings with the same triple are the same mapping; merging unions
// their evidence by hash. Aggregate confidence is a function of the
// evidence set and is never stored on the mapping.
type Mapping struct {
	Subject   vocab.Reference
	Predicate vocab.Reference
	Object    vocab.Reference
	Evidence  []Evidence
}

// New constructs a mapping, rejecting self-mappings and empty
// evidence sets.
func New(subject, predicate, object vocab.Reference, evidence ...Evidence) (Mapping, error) {
	if subject.Equal(object) {
		return Mapping{}, errors.Newf(errors.InternalError, "self-mapping on %s", subject.CURIE())
	}
	if len(evidence) == 0 {
		return Mapping{}, errors.Newf(errors.InternalError, "mapping %s -> %s without evidence", subject.CURIE(), object.CURIE())
	}
	return Mapping{Subject: subject, Predicate: predicate, Object: object, Evidence: evidence}, nil
}

// Key returns the mapping's identity triple.
func (m Mapping) Key() TripleKey {
	return TripleKey{
		Subject:   m.Subject.Key(),
		Predicate: m.Predicate.Key(),
		Object:    m.Object.Key(),
	}
}

// WithEvidence returns a copy of the mapping with extra evidence
// unioned in by hash.
func (m Mapping) WithEvidence(extra ...Evidence) Mapping {
	merged := make([]Evidence, 0, len(m.Evidence)+len(extra))
	merged = append(merged, m.Evidence...)
	merged = append(merged, extra...)
	m.Evidence = DeduplicateEvidence(merged)
	return m
}
