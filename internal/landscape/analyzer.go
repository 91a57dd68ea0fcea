package landscape

import (
	"math"
	"sort"
	"strings"

	"sma/internal/graph"
	"sma/internal/logging"
	"sma/internal/mapping"
	"sma/internal/vocab"
)

// TermProvider supplies per-prefix term-count estimates for the
// vocabularies under analysis. Providers are read-only and may be
// shared across threads.
type TermProvider interface {
	TermCount(prefix string) (int, bool)
}

// TermCounts is a map-backed TermProvider.
type TermCounts map[string]int

// TermCount implements TermProvider.
func (tc TermCounts) TermCount(prefix string) (int, bool) {
	n, ok := tc[prefix]
	return n, ok
}

// CombinationCount is the number of equivalence components whose set
// of present prefixes equals exactly Prefixes.
type CombinationCount struct {
	Prefixes []string `json:"prefixes"`
	Count    int      `json:"count"`
}

// Result describes the joint coverage of a set of vocabularies over a
// shared domain.
type Result struct {
	// Prefixes is the analyzed prefix set, in input order. All
	// matrices are indexed by position in this slice.
	Prefixes []string `json:"prefixes"`
	// RawOverlap[p][q] counts distinct subjects of prefix p with at
	// least one exact match to an object of prefix q before
	// inference; the diagonal holds term counts.
	RawOverlap [][]int `json:"raw_overlap"`
	// Overlap is the same matrix over the processed collection.
	Overlap [][]int `json:"overlap"`
	// Gains is Overlap - RawOverlap, element-wise.
	Gains [][]int `json:"gains"`
	// PercentGains is 100 * Gains / RawOverlap; +Inf where a zero raw
	// count became nonzero, NaN where both are zero. Excluded from
	// JSON because the sentinel values have no JSON encoding.
	PercentGains [][]float64 `json:"-"`
	// UniqueEntities estimates distinct entities after merging:
	// equivalence components plus never-mapped singletons.
	UniqueEntities int `json:"unique_entities"`
	// TotalTerms is the sum of the term counts over Prefixes.
	TotalTerms int `json:"total_terms"`
	// ReductionRatio is (TotalTerms - UniqueEntities) / TotalTerms.
	ReductionRatio float64 `json:"reduction_ratio"`
	// Combinations counts components per exact prefix combination,
	// singleton prefixes included. Drives UpSet-style plots.
	Combinations []CombinationCount `json:"combinations"`
	// Distribution counts entities by the number of vocabularies they
	// appear in.
	Distribution map[int]int `json:"distribution"`
}

// Analyzer computes the landscape over a fixed prefix set.
type Analyzer struct {
	prefixes []string
	position map[string]int
	terms    TermProvider
	logger   *logging.Logger
}

// New creates an analyzer. Prefixes absent from the term provider get
// a zero term count.
func New(prefixes []string, terms TermProvider, logger *logging.Logger) *Analyzer {
	position := make(map[string]int, len(prefixes))
	for i, p := range prefixes {
		position[p] = i
	}
	if terms == nil {
		terms = TermCounts{}
	}
	return &Analyzer{prefixes: prefixes, position: position, terms: terms, logger: logger}
}

// Analyze computes the landscape from the raw and processed
// collections. Both are restricted to the analyzer's prefix set.
func (a *Analyzer) Analyze(raw, processed *mapping.Index) *Result {
	result := &Result{
		Prefixes:     a.prefixes,
		RawOverlap:   a.overlapMatrix(raw),
		Overlap:      a.overlapMatrix(processed),
		Distribution: make(map[int]int),
	}

	n := len(a.prefixes)
	result.Gains = make([][]int, n)
	result.PercentGains = make([][]float64, n)
	for i := 0; i < n; i++ {
		result.Gains[i] = make([]int, n)
		result.PercentGains[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			gain := result.Overlap[i][j] - result.RawOverlap[i][j]
			result.Gains[i][j] = gain
			switch {
			case result.RawOverlap[i][j] > 0:
				result.PercentGains[i][j] = 100 * float64(gain) / float64(result.RawOverlap[i][j])
			case result.Overlap[i][j] > 0:
				result.PercentGains[i][j] = math.Inf(1)
			default:
				result.PercentGains[i][j] = math.NaN()
			}
		}
	}

	a.countEntities(processed, result)

	if a.logger != nil {
		a.logger.Info("landscape analysis complete", logging.Fields{
			"prefixes":        len(a.prefixes),
			"unique_entities": result.UniqueEntities,
			"total_terms":     result.TotalTerms,
		})
	}
	return result
}

// overlapMatrix counts, for each ordered prefix pair (p, q), the
// distinct subjects of prefix p with at least one exact match to an
// object of prefix q. Diagonal entries hold term counts.
func (a *Analyzer) overlapMatrix(ix *mapping.Index) [][]int {
	n := len(a.prefixes)
	subjects := make([]map[string]map[string]bool, n) // p -> q -> subject ids
	for i := range subjects {
		subjects[i] = make(map[string]map[string]bool)
	}
	for _, m := range ix.Mappings() {
		if !m.Predicate.Key().Equal(vocab.ExactMatch) {
			continue
		}
		pi, ok := a.position[m.Subject.Prefix]
		if !ok {
			continue
		}
		q := m.Object.Prefix
		if _, ok := a.position[q]; !ok {
			continue
		}
		ids, ok := subjects[pi][q]
		if !ok {
			ids = make(map[string]bool)
			subjects[pi][q] = ids
		}
		ids[m.Subject.Identifier] = true
	}

	matrix := make([][]int, n)
	for i, p := range a.prefixes {
		matrix[i] = make([]int, n)
		for j, q := range a.prefixes {
			if i == j {
				count, _ := a.terms.TermCount(p)
				matrix[i][j] = count
				continue
			}
			matrix[i][j] = len(subjects[i][q])
		}
	}
	return matrix
}

// countEntities fills the unique-entity estimate, reduction ratio,
// combination counts, and distribution from the processed equivalence
// graph restricted to the analyzed prefixes.
func (a *Analyzer) countEntities(processed *mapping.Index, result *Result) {
	restricted := mapping.FilterPrefixes(processed.Mappings(), mapping.PrefixFilter{Keep: a.prefixes})
	g := graph.BuildEquivalence(mapping.NewIndex(restricted), nil)
	components := g.Components()

	mapped := make(map[string]int, len(a.prefixes)) // prefix -> nodes in any component
	combinations := make(map[string]int)
	for _, component := range components {
		present := make(map[string]bool)
		for _, member := range component.Members {
			mapped[member.Prefix]++
			present[member.Prefix] = true
		}
		combinations[combinationKey(present)]++
		result.Distribution[len(present)]++
	}

	unique := len(components)
	total := 0
	for _, prefix := range a.prefixes {
		count, _ := a.terms.TermCount(prefix)
		total += count
		singletons := count - mapped[prefix]
		if singletons > 0 {
			unique += singletons
			combinations[prefix] += singletons
			result.Distribution[1] += singletons
		}
	}

	result.UniqueEntities = unique
	result.TotalTerms = total
	if total > 0 {
		result.ReductionRatio = float64(total-unique) / float64(total)
	}

	for key, count := range combinations {
		result.Combinations = append(result.Combinations, CombinationCount{
			Prefixes: strings.Split(key, "|"),
			Count:    count,
		})
	}
	sort.Slice(result.Combinations, func(i, j int) bool {
		ci, cj := result.Combinations[i], result.Combinations[j]
		if len(ci.Prefixes) != len(cj.Prefixes) {
			return len(ci.Prefixes) < len(cj.Prefixes)
		}
		return strings.Join(ci.Prefixes, "|") < strings.Join(cj.Prefixes, "|")
	})
}

func combinationKey(present map[string]bool) string {
	prefixes := make([]string, 0, len(present))
	for p := range present {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return strings.Join(prefixes, "|")
}
