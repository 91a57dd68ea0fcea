package mapping

import (
	"sort"

	"sma/internal/vocab"
)

type subjectPredicate struct {
	subject   vocab.Reference
	predicate vocab.Reference
}

// Index holds a deduplicated mapping collection with lookups by triple
// key, subject, object, and (subject, predicate). Indexes are built
// from a collection, read, and discarded; they are rebuilt on any bulk
// transformation and never mutated by callers.
//
// The index doubles as the confidence resolver for its collection:
// aggregate confidences are memoized per index, and since every
// transformation produces a new index, evidence unions naturally
// invalidate the memo.
type Index struct {
	order              []TripleKey
	byTriple           map[TripleKey]Mapping
	bySubject          map[vocab.Reference][]TripleKey
	byObject           map[vocab.Reference][]TripleKey
	bySubjectPredicate map[subjectPredicate][]TripleKey

	confidence map[TripleKey]float64
	resolving  map[TripleKey]bool
}

// NewIndex builds an index over the collection, collapsing mappings
// with identical triples and unioning their evidence sets by hash.
// First-seen triple order is preserved so outputs are stable.
func NewIndex(mappings []Mapping) *Index {
	ix := &Index{
		byTriple:           make(map[TripleKey]Mapping, len(mappings)),
		bySubject:          make(map[vocab.Reference][]TripleKey),
		byObject:           make(map[vocab.Reference][]TripleKey),
		bySubjectPredicate: make(map[subjectPredicate][]TripleKey),
		confidence:         make(map[TripleKey]float64),
		resolving:          make(map[TripleKey]bool),
	}
	for _, m := range mappings {
		key := m.Key()
		if existing, ok := ix.byTriple[key]; ok {
			ix.byTriple[key] = existing.WithEvidence(m.Evidence...)
			continue
		}
		m.Evidence = DeduplicateEvidence(m.Evidence)
		ix.byTriple[key] = m
		ix.order = append(ix.order, key)
		ix.bySubject[key.Subject] = append(ix.bySubject[key.Subject], key)
		ix.byObject[key.Object] = append(ix.byObject[key.Object], key)
		sp := subjectPredicate{subject: key.Subject, predicate: key.Predicate}
		ix.bySubjectPredicate[sp] = append(ix.bySubjectPredicate[sp], key)
	}
	return ix
}

// Len returns the number of distinct triples.
func (ix *Index) Len() int {
	return len(ix.order)
}

// Mappings materializes the deduplicated collection in stable order.
func (ix *Index) Mappings() []Mapping {
	out := make([]Mapping, 0, len(ix.order))
	for _, key := range ix.order {
		out = append(out, ix.byTriple[key])
	}
	return out
}

// Get returns the mapping for a triple key.
func (ix *Index) Get(key TripleKey) (Mapping, bool) {
	m, ok := ix.byTriple[key]
	return m, ok
}

// Has reports whether the triple is present.
func (ix *Index) Has(key TripleKey) bool {
	_, ok := ix.byTriple[key]
	return ok
}

// BySubject returns the mappings whose subject is r.
func (ix *Index) BySubject(r vocab.Reference) []Mapping {
	return ix.collect(ix.bySubject[r.Key()])
}

// ByObject returns the mappings whose object is r.
func (ix *Index) ByObject(r vocab.Reference) []Mapping {
	return ix.collect(ix.byObject[r.Key()])
}

// BySubjectPredicate returns the mappings with the given subject and
// predicate.
func (ix *Index) BySubjectPredicate(subject, predicate vocab.Reference) []Mapping {
	sp := subjectPredicate{subject: subject.Key(), predicate: predicate.Key()}
	return ix.collect(ix.bySubjectPredicate[sp])
}

func (ix *Index) collect(keys []TripleKey) []Mapping {
	out := make([]Mapping, 0, len(keys))
	for _, key := range keys {
		out = append(out, ix.byTriple[key])
	}
	return out
}

// References returns every reference appearing as subject or object,
// sorted by CURIE.
func (ix *Index) References() []vocab.Reference {
	seen := make(map[vocab.Reference]bool)
	for key := range ix.byTriple {
		seen[key.Subject] = true
		seen[key.Object] = true
	}
	out := make([]vocab.Reference, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return vocab.CompareCURIE(out[i], out[j]) < 0 })
	return out
}

// AggregateConfidence combines the triple's evidences by noisy-or,
// resolving reasoned parents recursively against this index. Unknown
// triples resolve to 0 so a dangling parent cannot inflate scores. A
// parent cycle (possible when two triples each carry evidence derived
// from the other) contributes 0 for the back edge, keeping the
// resolution a walk over the evidence DAG.
func (ix *Index) AggregateConfidence(key TripleKey) float64 {
	c, _ := ix.aggregate(key)
	return c
}

// aggregate reports the confidence and whether the value is exact.
// Values truncated by the cycle guard are not memoized: the same
// triple queried outside the cycle must resolve its full evidence set.
func (ix *Index) aggregate(key TripleKey) (confidence float64, exact bool) {
	if c, ok := ix.confidence[key]; ok {
		return c, true
	}
	m, ok := ix.byTriple[key]
	if !ok {
		return 0, true
	}
	if ix.resolving[key] {
		return 0, false
	}
	ix.resolving[key] = true
	tr := &resolveTracker{ix: ix}
	confidences := make([]float64, 0, len(m.Evidence))
	for _, e := range m.Evidence {
		confidences = append(confidences, e.Confidence(tr))
	}
	delete(ix.resolving, key)
	c := NoisyOr(confidences)
	if !tr.inexact {
		ix.confidence[key] = c
	}
	return c, !tr.inexact
}

// resolveTracker threads cycle-truncation state through the Resolver
// interface during a recursive aggregate walk.
type resolveTracker struct {
	ix      *Index
	inexact bool
}

func (t *resolveTracker) AggregateConfidence(key TripleKey) float64 {
	c, exact := t.ix.aggregate(key)
	if !exact {
		t.inexact = true
	}
	return c
}
