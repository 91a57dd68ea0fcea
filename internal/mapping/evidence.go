package mapping

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"sma/internal/vocab"
)

// MappingSet describes the provenance of a batch of simple evidences:
// the curated resource they were loaded from.
type MappingSet struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Version    string  `json:"version,omitempty"`
	License    string  `json:"license,omitempty"`
	Confidence float64 `json:"confidence"`
}

// NewMappingSet creates a mapping set record with a fresh id.
func NewMappingSet(name, version, license string, confidence float64) *MappingSet {
	return &MappingSet{
		ID:         uuid.NewString(),
		Name:       name,
		Version:    version,
		License:    license,
		Confidence: confidence,
	}
}

// Hash returns the content hash of the set's semantically significant
// fields. The random ID is transient and excluded, so the same set
// loaded in two runs hashes identically.
func (ms *MappingSet) Hash() string {
	return hashParts(
		"name:"+ms.Name,
		"version:"+ms.Version,
		"license:"+ms.License,
		fmt.Sprintf("confidence:%.6f", ms.Confidence),
	)
}

// Evidence is one justification for a mapping. Implementations are
// immutable once constructed and content-addressed via Hash.
type Evidence interface {
	// Kind discriminates serialized evidence records.
	Kind() string
	// Justification is a term from the match-type vocabulary.
	Justification() vocab.Reference
	// Hash is a stable content hash over all semantically significant
	// fields, used for deduplication and cross-run equality.
	Hash() string
	// Confidence resolves this evidence's confidence in [0,1]. The
	// resolver supplies aggregate confidences for parent triples of
	// reasoned evidence; simple evidence ignores it.
	Confidence(resolve Resolver) float64
}

// Resolver supplies the aggregate confidence of a mapping by triple
// key, for reasoned evidence whose parents are stored as keys rather
// than object references.
type Resolver interface {
	AggregateConfidence(key TripleKey) float64
}

// SimpleEvidence is a curated justification carried by a source.
type SimpleEvidence struct {
	Just       vocab.Reference `json:"justification"`
	Conf       float64         `json:"confidence"`
	Author     vocab.Reference `json:"author,omitempty"`
	MappingSet *MappingSet     `json:"mapping_set,omitempty"`
}

// Kind implements Evidence.
func (e *SimpleEvidence) Kind() string { return "simple" }

// Justification implements Evidence.
func (e *SimpleEvidence) Justification() vocab.Reference { return e.Just }

// Confidence is the evidence confidence scaled by the mapping-set
// confidence when one is attached.
func (e *SimpleEvidence) Confidence(Resolver) float64 {
	c := e.Conf
	if e.MappingSet != nil {
		c *= e.MappingSet.Confidence
	}
	return c
}

// Hash implements Evidence. Author display names are transient and
// excluded via the reference key.
func (e *SimpleEvidence) Hash() string {
	parts := []string{
		"kind:simple",
		"justification:" + e.Just.Key().CURIE(),
		fmt.Sprintf("confidence:%.6f", e.Conf),
	}
	if !e.Author.IsZero() {
		parts = append(parts, "author:"+e.Author.Key().CURIE())
	}
	if e.MappingSet != nil {
		parts = append(parts, "set:"+e.MappingSet.Hash())
	}
	return hashParts(parts...)
}

// ReasonedEvidence is a justification derived by an inference rule.
// Parents are stored as triple keys, not object references, so the
// evidence graph stays a DAG over stable triple identities.
type ReasonedEvidence struct {
	Just vocab.Reference `json:"justification"`
	// Factor is the rule-specific confidence factor; 1.0 for
	// inversion, generalization, and chaining, the configured rule
	// confidence for predicate mutation.
	Factor float64 `json:"factor"`
	// Parents is the ordered, non-empty list of triples this evidence
	// was reasoned from.
	Parents []TripleKey `json:"parents"`
	// Summarized marks evidence whose confidence was already folded
	// into Factor (e.g. a prioritization path summary). Parents stay
	// as provenance but are not resolved again, so the evidence is
	// usable in artifacts that omit its parents.
	Summarized bool `json:"summarized,omitempty"`
}

// Kind implements Evidence.
func (e *ReasonedEvidence) Kind() string { return "reasoned" }

// Justification implements Evidence.
func (e *ReasonedEvidence) Justification() vocab.Reference { return e.Just }

// Confidence is the product of the parents' aggregate confidences
// times the rule factor. Summarized evidence returns the factor as-is.
func (e *ReasonedEvidence) Confidence(resolve Resolver) float64 {
	if e.Summarized {
		return e.Factor
	}
	c := e.Factor
	for _, parent := range e.Parents {
		c *= resolve.AggregateConfidence(parent)
	}
	return c
}

// Hash implements Evidence.
func (e *ReasonedEvidence) Hash() string {
	parts := make([]string, 0, len(e.Parents)+2)
	parts = append(parts,
		"kind:reasoned",
		"justification:"+e.Just.Key().CURIE(),
		fmt.Sprintf("factor:%.6f", e.Factor),
		fmt.Sprintf("summarized:%t", e.Summarized),
	)
	for i, parent := range e.Parents {
		parts = append(parts, fmt.Sprintf("parent%d:%s", i, parent.String()))
	}
	return hashParts(parts...)
}

// DeduplicateEvidence unions evidences by content hash, preserving
// first-seen order.
func DeduplicateEvidence(evidence []Evidence) []Evidence {
	seen := make(map[string]bool, len(evidence))
	out := make([]Evidence, 0, len(evidence))
	for _, e := range evidence {
		h := e.Hash()
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, e)
	}
	return out
}

func hashParts(parts ...string) string {
	sorted := make([]string, len(parts))
	copy(sorted, parts)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "|")))
	return hex.EncodeToString(sum[:])
}
