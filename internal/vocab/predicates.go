package vocab

import "sync"

// Core mapping predicates. Prefixes follow the vocabularies the
// predicates are drawn from (SKOS, OWL, OBO in OWL, IAO).
var (
	// ExactMatch relates two semantically equivalent terms
	ExactMatch = Reference{Prefix: "skos", Identifier: "exactMatch", Name: "exact match"}
	// BroadMatch relates a subject to a broader object
	BroadMatch = Reference{Prefix: "skos", Identifier: "broadMatch", Name: "broad match"}
	// NarrowMatch relates a subject to a narrower object
	NarrowMatch = Reference{Prefix: "skos", Identifier: "narrowMatch", Name: "narrow match"}
	// CloseMatch relates two semantically close terms
	CloseMatch = Reference{Prefix: "skos", Identifier: "closeMatch", Name: "close match"}
	// RelatedMatch relates two associated terms
	RelatedMatch = Reference{Prefix: "skos", Identifier: "relatedMatch", Name: "related match"}
	// EquivalentTo relates two logically equivalent terms
	EquivalentTo = Reference{Prefix: "owl", Identifier: "equivalentTo", Name: "equivalent to"}
	// ReplacedBy relates a deprecated term to its replacement
	ReplacedBy = Reference{Prefix: "IAO", Identifier: "0100001", Name: "term replaced by"}
	// DbXref is an undefined database cross-reference
	DbXref = Reference{Prefix: "oboInOwl", Identifier: "hasDbXref", Name: "has database cross-reference"}
)

// PredicateInfo holds the reasoning-relevant metadata for a predicate.
// The zero value describes an opaque predicate: no inverse, not
// transitive, no generalization.
type PredicateInfo struct {
	// Inverse is the predicate produced by swapping subject and object.
	// Symmetric predicates are their own inverse. Zero means the
	// predicate cannot be inverted.
	Inverse Reference
	// Transitive predicates participate in chain inference.
	Transitive bool
	// GeneralizesTo, when set, is the weaker predicate the triple also
	// holds under.
	GeneralizesTo Reference
	// Imprecise predicates are dropped by the remove-imprecise
	// post-filter.
	Imprecise bool
}

// Symmetric reports whether the predicate is its own inverse.
func (pi PredicateInfo) Symmetric(p Reference) bool {
	return pi.Inverse.Equal(p)
}

// Invertible reports whether an inverse predicate is configured.
func (pi PredicateInfo) Invertible() bool {
	return !pi.Inverse.IsZero()
}

// PredicateTable maps predicates to their reasoning metadata. Adding a
// predicate requires only a table entry; unknown predicates are
// treated as opaque and logged once per distinct predicate by callers.
type PredicateTable struct {
	entries map[Reference]PredicateInfo

	mu   sync.Mutex
	seen map[Reference]bool // unknown predicates already reported
}

// NewPredicateTable returns a table pre-populated with the core
// predicates. dbXref is undirected in practice so it is symmetric for
// inversion but never transitive.
func NewPredicateTable() *PredicateTable {
	t := &PredicateTable{
		entries: make(map[Reference]PredicateInfo),
		seen:    make(map[Reference]bool),
	}
	t.Register(ExactMatch, PredicateInfo{Inverse: ExactMatch, Transitive: true})
	t.Register(BroadMatch, PredicateInfo{Inverse: NarrowMatch, GeneralizesTo: RelatedMatch})
	t.Register(NarrowMatch, PredicateInfo{Inverse: BroadMatch, GeneralizesTo: RelatedMatch})
	t.Register(CloseMatch, PredicateInfo{Inverse: CloseMatch, GeneralizesTo: RelatedMatch, Imprecise: true})
	t.Register(RelatedMatch, PredicateInfo{Inverse: RelatedMatch})
	t.Register(EquivalentTo, PredicateInfo{Inverse: EquivalentTo, Transitive: true, GeneralizesTo: ExactMatch})
	t.Register(ReplacedBy, PredicateInfo{Transitive: true})
	t.Register(DbXref, PredicateInfo{Inverse: DbXref, Imprecise: true})
	return t
}

// Register adds or replaces a predicate entry.
func (t *PredicateTable) Register(p Reference, info PredicateInfo) {
	t.entries[p.Key()] = info
}

// Lookup returns the metadata for a predicate. Unknown predicates get
// the opaque zero value; ok reports whether the predicate was
// registered.
func (t *PredicateTable) Lookup(p Reference) (PredicateInfo, bool) {
	info, ok := t.entries[p.Key()]
	return info, ok
}

// Known reports whether the predicate has a registry entry.
func (t *PredicateTable) Known(p Reference) bool {
	_, ok := t.entries[p.Key()]
	return ok
}

// FirstSighting records an unknown predicate and reports whether this
// is the first time it was seen, so callers can log it exactly once.
func (t *PredicateTable) FirstSighting(p Reference) bool {
	key := p.Key()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seen[key] {
		return false
	}
	t.seen[key] = true
	return true
}

// EquivalenceSet is the default predicate set whose mappings
// contribute edges to the equivalence graph.
func EquivalenceSet() []Reference {
	return []Reference{ExactMatch, EquivalentTo}
}

// CondenseChain reduces the predicate multiset of a chain to a single
// predicate, or reports that the chain supports no inference. A chain
// of one transitive predicate keeps it; exact matches mixed with broad
// (or narrow) matches condense to the less precise predicate; mixing
// broad and narrow supports nothing.
func (t *PredicateTable) CondenseChain(predicates []Reference) (Reference, bool) {
	var sawExact, sawBroad, sawNarrow, sawOther bool
	first := Reference{}
	uniform := true
	for i, p := range predicates {
		key := p.Key()
		if i == 0 {
			first = key
		} else if !key.Equal(first) {
			uniform = false
		}
		switch {
		case key.Equal(ExactMatch):
			sawExact = true
		case key.Equal(BroadMatch):
			sawBroad = true
		case key.Equal(NarrowMatch):
			sawNarrow = true
		default:
			sawOther = true
		}
	}
	if first.IsZero() {
		return Reference{}, false
	}
	if uniform {
		info, ok := t.Lookup(first)
		if ok && info.Transitive {
			return first, true
		}
		return Reference{}, false
	}
	if sawOther || (sawBroad && sawNarrow) {
		return Reference{}, false
	}
	if sawExact && sawBroad {
		return BroadMatch, true
	}
	if sawExact && sawNarrow {
		return NarrowMatch, true
	}
	return Reference{}, false
}
