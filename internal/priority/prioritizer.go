package priority

import (
	"math"
	"sort"

	"sma/internal/graph"
	"sma/internal/logging"
	"sma/internal/mapping"
	"sma/internal/vocab"
)

// Prioritizer reduces each equivalence component to a star graph
// rooted at its highest-priority member. The output is a functional
// mapping: every reference appears as subject at most once and maps to
// its component's canonical node.
type Prioritizer struct {
	priority []string
	rank     map[string]int
	logger   *logging.Logger
}

// New creates a prioritizer for an ordered prefix list; earlier
// prefixes rank higher.
func New(priority []string, logger *logging.Logger) *Prioritizer {
	rank := make(map[string]int, len(priority))
	for i, prefix := range priority {
		// first occurrence wins when a prefix repeats
		if _, ok := rank[prefix]; !ok {
			rank[prefix] = i
		}
	}
	return &Prioritizer{priority: priority, rank: rank, logger: logger}
}

// Canonical elects the canonical node of a member list: lowest
// priority rank, ties broken by ascending CURIE. Members whose prefix
// is unlisted rank below every listed prefix. Returns false when no
// member has a listed prefix.
func (p *Prioritizer) Canonical(members []vocab.Reference) (vocab.Reference, bool) {
	best := vocab.Reference{}
	bestRank := math.MaxInt
	found := false
	for _, member := range members {
		r, listed := p.rank[member.Prefix]
		if !listed {
			continue
		}
		if r < bestRank || (r == bestRank && vocab.CompareCURIE(member, best) < 0) {
			best = member
			bestRank = r
			found = true
		}
	}
	return best, found
}

// Prioritize emits, for every non-canonical member of every component,
// an exact match to the component's canonical node. Components with no
// member of a listed prefix are skipped. Each emitted mapping carries
// one reasoned evidence summarizing the connecting path, with
// confidence equal to the minimum aggregate confidence along it.
func (p *Prioritizer) Prioritize(g *graph.Equivalence) []mapping.Mapping {
	components := g.Components()
	var out []mapping.Mapping
	skipped := 0
	for _, component := range components {
		canonical, ok := p.Canonical(component.Members)
		if !ok {
			skipped++
			continue
		}
		for _, member := range component.Members {
			if member.Equal(canonical) {
				continue
			}
			evidence, ok := p.pathEvidence(g, member, canonical)
			if !ok {
				continue
			}
			m, err := mapping.New(member, vocab.ExactMatch, canonical, evidence)
			if err != nil {
				continue
			}
			out = append(out, m)
		}
	}

	// Order by canonical prefix rank, then object and subject CURIE,
	// so the artifact reads grouped by target vocabulary.
	sort.Slice(out, func(i, j int) bool {
		ri := p.rank[out[i].Object.Prefix]
		rj := p.rank[out[j].Object.Prefix]
		if ri != rj {
			return ri < rj
		}
		if c := vocab.CompareCURIE(out[i].Object, out[j].Object); c != 0 {
			return c < 0
		}
		return vocab.CompareCURIE(out[i].Subject, out[j].Subject) < 0
	})

	if p.logger != nil {
		p.logger.Info("prioritized equivalence components", logging.Fields{
			"components": len(components),
			"skipped":    skipped,
			"mappings":   len(out),
		})
	}
	return out
}

// pathEvidence summarizes the path from a member to the canonical node
// as a single reasoned evidence: the path's triples as parents and the
// minimum confidence along it as the rule factor, so the derived
// confidence never overstates the weakest link.
func (p *Prioritizer) pathEvidence(g *graph.Equivalence, from, to vocab.Reference) (mapping.Evidence, bool) {
	path := g.Path(from, to)
	if len(path) == 0 {
		return nil, false
	}
	parents := make([]mapping.TripleKey, len(path))
	minConfidence := 1.0
	for i, edge := range path {
		parents[i] = edge.Key
		if edge.Confidence < minConfidence {
			minConfidence = edge.Confidence
		}
	}
	return &mapping.ReasonedEvidence{
		Just:       vocab.ChainMapping,
		Factor:     minConfidence,
		Parents:    parents,
		Summarized: true,
	}, true
}
