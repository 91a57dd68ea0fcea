package mapping

import (
	"sort"

	"sma/internal/vocab"
)

// Deduplicate collapses mappings with identical triples, unioning
// evidence sets by hash. Idempotent and commutative over
// concatenation.
func Deduplicate(mappings []Mapping) []Mapping {
	return NewIndex(mappings).Mappings()
}

// FilterPredicates keeps mappings whose predicate is in allowed.
func FilterPredicates(mappings []Mapping, allowed []vocab.Reference) []Mapping {
	keep := make(map[vocab.Reference]bool, len(allowed))
	for _, p := range allowed {
		keep[p.Key()] = true
	}
	out := make([]Mapping, 0, len(mappings))
	for _, m := range mappings {
		if keep[m.Predicate.Key()] {
			out = append(out, m)
		}
	}
	return out
}

// PrefixFilter selects mappings by subject or object prefix. Keep and
// Remove compose: when both are set a mapping must match Keep and must
// not match Remove. SubjectOnly/ObjectOnly restrict which side is
// tested; by default both sides are.
type PrefixFilter struct {
	Keep        []string
	Remove      []string
	SubjectOnly bool
	ObjectOnly  bool
}

// FilterPrefixes applies a prefix filter to the collection.
func FilterPrefixes(mappings []Mapping, filter PrefixFilter) []Mapping {
	keep := toSet(filter.Keep)
	remove := toSet(filter.Remove)
	out := make([]Mapping, 0, len(mappings))
	for _, m := range mappings {
		prefixes := make([]string, 0, 2)
		if !filter.ObjectOnly {
			prefixes = append(prefixes, m.Subject.Prefix)
		}
		if !filter.SubjectOnly {
			prefixes = append(prefixes, m.Object.Prefix)
		}
		ok := true
		for _, prefix := range prefixes {
			if len(keep) > 0 && !keep[prefix] {
				ok = false
			}
			if remove[prefix] {
				ok = false
			}
		}
		if ok {
			out = append(out, m)
		}
	}
	return out
}

// FilterSelfMappings drops mappings whose subject equals their object.
// Construction already forbids these; the filter guards collections
// deserialized from external artifacts.
func FilterSelfMappings(mappings []Mapping) []Mapping {
	out := make([]Mapping, 0, len(mappings))
	for _, m := range mappings {
		if !m.Subject.Equal(m.Object) {
			out = append(out, m)
		}
	}
	return out
}

// FilterInternal drops mappings between two references of the same
// prefix, e.g. a vocabulary's mappings onto itself.
func FilterInternal(mappings []Mapping) []Mapping {
	out := make([]Mapping, 0, len(mappings))
	for _, m := range mappings {
		if m.Subject.Prefix != m.Object.Prefix {
			out = append(out, m)
		}
	}
	return out
}

// FilterMinConfidence drops mappings whose aggregate confidence falls
// below the threshold.
func FilterMinConfidence(mappings []Mapping, threshold float64) []Mapping {
	ix := NewIndex(mappings)
	out := make([]Mapping, 0, ix.Len())
	for _, m := range ix.Mappings() {
		if ix.AggregateConfidence(m.Key()) >= threshold {
			out = append(out, m)
		}
	}
	return out
}

// FilterTriples drops mappings whose triple appears in the skip
// collection, regardless of evidence. Used to apply negative mappings.
func FilterTriples(mappings []Mapping, skip []Mapping) []Mapping {
	skipSet := make(map[TripleKey]bool, len(skip))
	for _, m := range skip {
		skipSet[m.Key()] = true
	}
	out := make([]Mapping, 0, len(mappings))
	for _, m := range mappings {
		if !skipSet[m.Key()] {
			out = append(out, m)
		}
	}
	return out
}

// SealEvidence prepares a collection for the removal of the given
// triples: reasoned evidence citing a doomed parent has its confidence
// resolved against the still-complete collection and folded into a
// summarized factor. Without this, derived mappings would resolve
// dangling parents to zero after the filter.
func SealEvidence(mappings []Mapping, removed map[TripleKey]bool) []Mapping {
	if len(removed) == 0 {
		return mappings
	}
	ix := NewIndex(mappings)
	out := make([]Mapping, 0, ix.Len())
	for _, m := range ix.Mappings() {
		sealed := m.Evidence
		copied := false
		for i, e := range m.Evidence {
			re, ok := e.(*ReasonedEvidence)
			if !ok || re.Summarized {
				continue
			}
			doomed := false
			for _, parent := range re.Parents {
				if removed[parent] {
					doomed = true
					break
				}
			}
			if !doomed {
				continue
			}
			if !copied {
				sealed = append([]Evidence(nil), m.Evidence...)
				copied = true
			}
			sealed[i] = &ReasonedEvidence{
				Just:       re.Just,
				Factor:     e.Confidence(ix),
				Parents:    re.Parents,
				Summarized: true,
			}
		}
		m.Evidence = sealed
		out = append(out, m)
	}
	return out
}

// Project returns the mappings from source_prefix subjects to
// target_prefix objects that are one-to-one on both sides. Mappings
// whose subject or object participates in more than one counterpart
// are returned separately as suspicious.
func Project(mappings []Mapping, sourcePrefix, targetPrefix string) (projected, suspicious []Mapping) {
	bySubject := make(map[vocab.Reference][]Mapping)
	byObject := make(map[vocab.Reference][]Mapping)
	for _, m := range mappings {
		if m.Subject.Prefix != sourcePrefix || m.Object.Prefix != targetPrefix {
			continue
		}
		bySubject[m.Subject.Key()] = append(bySubject[m.Subject.Key()], m)
		byObject[m.Object.Key()] = append(byObject[m.Object.Key()], m)
	}
	seen := make(map[TripleKey]bool)
	var keep, sus []Mapping
	add := func(dst *[]Mapping, group []Mapping) {
		for _, m := range group {
			if key := m.Key(); !seen[key] {
				seen[key] = true
				*dst = append(*dst, m)
			}
		}
	}
	for _, group := range bySubject {
		if len(group) == 1 && len(byObject[group[0].Object.Key()]) == 1 {
			add(&keep, group)
		} else {
			add(&sus, group)
		}
	}
	for _, group := range byObject {
		if len(group) > 1 {
			add(&sus, group)
		}
	}
	return Deduplicate(keep), Deduplicate(sus)
}

// ManyToMany extracts the mappings whose subject or object maps to
// multiple counterparts within a prefix pair, disregarding predicate
// type. These usually indicate modeling granularity mismatches worth
// curator review.
func ManyToMany(mappings []Mapping) []Mapping {
	type pairSide struct {
		sourcePrefix, targetPrefix string
		identifier                 string
	}
	forward := make(map[pairSide]map[string][]Mapping)
	backward := make(map[pairSide]map[string][]Mapping)
	record := func(store map[pairSide]map[string][]Mapping, side pairSide, other string, m Mapping) {
		inner, ok := store[side]
		if !ok {
			inner = make(map[string][]Mapping)
			store[side] = inner
		}
		inner[other] = append(inner[other], m)
	}
	for _, m := range mappings {
		fw := pairSide{m.Subject.Prefix, m.Object.Prefix, m.Subject.Identifier}
		bw := pairSide{m.Subject.Prefix, m.Object.Prefix, m.Object.Identifier}
		record(forward, fw, m.Object.Identifier, m)
		record(backward, bw, m.Subject.Identifier, m)
	}
	var out []Mapping
	for _, store := range []map[pairSide]map[string][]Mapping{forward, backward} {
		for _, inner := range store {
			if len(inner) <= 1 {
				continue
			}
			for _, group := range inner {
				out = append(out, group...)
			}
		}
	}
	return Deduplicate(out)
}

// SourceTargetCount is one row of the prefix-pair summary.
type SourceTargetCount struct {
	SourcePrefix string
	TargetPrefix string
	Count        int
}

// CountSourceTarget counts distinct triples per (subject prefix,
// object prefix) pair, sorted by descending count then pair.
func CountSourceTarget(mappings []Mapping) []SourceTargetCount {
	counts := make(map[[2]string]int)
	for _, m := range Deduplicate(mappings) {
		counts[[2]string{m.Subject.Prefix, m.Object.Prefix}]++
	}
	out := make([]SourceTargetCount, 0, len(counts))
	for pair, n := range counts {
		out = append(out, SourceTargetCount{SourcePrefix: pair[0], TargetPrefix: pair[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].SourcePrefix != out[j].SourcePrefix {
			return out[i].SourcePrefix < out[j].SourcePrefix
		}
		return out[i].TargetPrefix < out[j].TargetPrefix
	})
	return out
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
