package inference

import (
	"context"
	"testing"

	"sma/internal/errors"
	"sma/internal/mapping"
	"sma/internal/vocab"
)

func ref(curie string) vocab.Reference {
	return vocab.MustParseCURIE(curie)
}

func mustMapping(t *testing.T, s string, p vocab.Reference, o string) mapping.Mapping {
	t.Helper()
	m, err := mapping.New(ref(s), p, ref(o),
		&mapping.SimpleEvidence{Just: vocab.ManualMapping, Conf: 1})
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	return m
}

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	return NewEngine(vocab.NewPredicateTable(), nil, opts)
}

func keys(mappings []mapping.Mapping) map[string]mapping.Mapping {
	out := make(map[string]mapping.Mapping, len(mappings))
	for _, m := range mappings {
		out[m.Key().String()] = m
	}
	return out
}

func TestEmptyInput(t *testing.T) {
	result, err := newEngine(t, Options{}).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Mappings) != 0 {
		t.Errorf("expected empty output, got %d", len(result.Mappings))
	}
	if !result.FixedPoint {
		t.Error("empty input should reach a fixed point immediately")
	}
}

func TestInversion(t *testing.T) {
	t.Run("symmetric predicate", func(t *testing.T) {
		m := mustMapping(t, "a:1", vocab.ExactMatch, "b:2")
		result, err := newEngine(t, Options{}).Run(context.Background(), []mapping.Mapping{m})
		if err != nil {
			t.Fatal(err)
		}
		got := keys(result.Mappings)
		inverse, ok := got["b:2 skos:exactMatch a:1"]
		if !ok {
			t.Fatal("inverse mapping missing")
		}
		re, ok := inverse.Evidence[0].(*mapping.ReasonedEvidence)
		if !ok {
			t.Fatal("inverse must carry reasoned evidence")
		}
		if !re.Just.Equal(vocab.InversionMapping) {
			t.Errorf("justification: %s", re.Just)
		}
		if len(re.Parents) != 1 || re.Parents[0] != m.Key() {
			t.Error("inverse evidence must cite the original as parent")
		}
	})

	t.Run("narrow flips to broad", func(t *testing.T) {
		m := mustMapping(t, "mesh:D1", vocab.NarrowMatch, "chebi:4672")
		result, err := newEngine(t, Options{}).Run(context.Background(), []mapping.Mapping{m})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := keys(result.Mappings)["chebi:4672 skos:broadMatch mesh:D1"]; !ok {
			t.Error("narrowMatch must invert to broadMatch")
		}
	})

	t.Run("replacedBy does not invert", func(t *testing.T) {
		m := mustMapping(t, "a:old", vocab.ReplacedBy, "a2:new")
		result, err := newEngine(t, Options{}).Run(context.Background(), []mapping.Mapping{m})
		if err != nil {
			t.Fatal(err)
		}
		for _, out := range result.Mappings {
			if out.Subject.Equal(ref("a2:new")) {
				t.Errorf("unexpected inverse %s", out.Key())
			}
		}
	})

	t.Run("involution adds no new triples", func(t *testing.T) {
		m := mustMapping(t, "a:1", vocab.BroadMatch, "b:2")
		engine := newEngine(t, Options{})
		once, err := engine.Run(context.Background(), []mapping.Mapping{m})
		if err != nil {
			t.Fatal(err)
		}
		twice, err := engine.Run(context.Background(), once.Mappings)
		if err != nil {
			t.Fatal(err)
		}
		if len(twice.Mappings) != len(once.Mappings) {
			t.Errorf("re-running inversion grew the set from %d to %d", len(once.Mappings), len(twice.Mappings))
		}
	})
}

// Scenario: two exact matches sharing a subject close into a six-way
// equivalence: originals, inverses, and the chained pair.
func TestChainClosure(t *testing.T) {
	m1 := mustMapping(t, "A:1", vocab.ExactMatch, "B:9")
	m2 := mustMapping(t, "A:1", vocab.ExactMatch, "C:6")
	result, err := newEngine(t, Options{}).Run(context.Background(), []mapping.Mapping{m1, m2})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Mappings) != 6 {
		for _, m := range result.Mappings {
			t.Logf("  %s", m.Key())
		}
		t.Fatalf("expected 6 mappings, got %d", len(result.Mappings))
	}
	got := keys(result.Mappings)
	chained, ok := got["B:9 skos:exactMatch C:6"]
	if !ok {
		t.Fatal("chained mapping B:9 -> C:6 missing")
	}
	re, ok := chained.Evidence[0].(*mapping.ReasonedEvidence)
	if !ok || !re.Just.Equal(vocab.ChainMapping) {
		t.Fatal("chained mapping must carry chain evidence")
	}
	if len(re.Parents) != 2 {
		t.Errorf("chain evidence must cite both parents, got %d", len(re.Parents))
	}
	if !result.FixedPoint {
		t.Error("small closure should reach a fixed point")
	}
}

func TestChainCondensation(t *testing.T) {
	t.Run("exact then broad yields broad", func(t *testing.T) {
		m1 := mustMapping(t, "a:1", vocab.ExactMatch, "b:2")
		m2 := mustMapping(t, "b:2", vocab.BroadMatch, "c:3")
		result, err := newEngine(t, Options{}).Run(context.Background(), []mapping.Mapping{m1, m2})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := keys(result.Mappings)["a:1 skos:broadMatch c:3"]; !ok {
			t.Error("expected condensed broadMatch chain")
		}
	})

	t.Run("broad then narrow yields nothing", func(t *testing.T) {
		m1 := mustMapping(t, "a:1", vocab.BroadMatch, "b:2")
		m2 := mustMapping(t, "b:2", vocab.NarrowMatch, "c:3")
		result, err := newEngine(t, Options{}).Run(context.Background(), []mapping.Mapping{m1, m2})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := keys(result.Mappings)["a:1 skos:broadMatch c:3"]; ok {
			t.Error("broad+narrow must not chain")
		}
		if _, ok := keys(result.Mappings)["a:1 skos:narrowMatch c:3"]; ok {
			t.Error("broad+narrow must not chain")
		}
	})

	t.Run("replacedBy chains within one vocabulary", func(t *testing.T) {
		m1 := mustMapping(t, "chebi:old", vocab.ReplacedBy, "chebi:mid")
		m2 := mustMapping(t, "chebi:mid", vocab.ReplacedBy, "chebi:new")
		result, err := newEngine(t, Options{}).Run(context.Background(), []mapping.Mapping{m1, m2})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := keys(result.Mappings)["chebi:old IAO:0100001 chebi:new"]; !ok {
			t.Error("deprecation chains must compose within a prefix")
		}
	})

	t.Run("dbxref does not chain", func(t *testing.T) {
		m1 := mustMapping(t, "a:1", vocab.DbXref, "b:2")
		m2 := mustMapping(t, "b:2", vocab.DbXref, "c:3")
		result, err := newEngine(t, Options{}).Run(context.Background(), []mapping.Mapping{m1, m2})
		if err != nil {
			t.Fatal(err)
		}
		for key := range keys(result.Mappings) {
			if key == "a:1 oboInOwl:hasDbXref c:3" {
				t.Error("dbxref chained transitively")
			}
		}
	})
}

// Scenario: a dbxref promoted to an exact match by a mutation rule.
func TestMutation(t *testing.T) {
	m := mustMapping(t, "doid:0050577", vocab.DbXref, "mesh:C562966")
	opts := Options{Mutations: []MutationRule{{
		SourcePrefix: "doid",
		OldPredicate: vocab.DbXref,
		NewPredicate: vocab.ExactMatch,
		Confidence:   0.99,
	}}}
	result, err := newEngine(t, opts).Run(context.Background(), []mapping.Mapping{m})
	if err != nil {
		t.Fatal(err)
	}
	got := keys(result.Mappings)

	mutated, ok := got["doid:0050577 skos:exactMatch mesh:C562966"]
	if !ok {
		t.Fatal("mutated mapping missing")
	}
	re, ok := mutated.Evidence[0].(*mapping.ReasonedEvidence)
	if !ok || !re.Just.Equal(vocab.KnowledgeMapping) {
		t.Fatal("mutation must carry knowledge-based evidence")
	}
	if re.Factor != 0.99 {
		t.Errorf("factor: got %v, want 0.99", re.Factor)
	}
	ix := mapping.NewIndex(result.Mappings)
	if c := ix.AggregateConfidence(mutated.Key()); c < 0.99-1e-9 || c > 0.99+1e-9 {
		t.Errorf("mutated confidence: got %v, want 0.99", c)
	}

	if _, ok := got["mesh:C562966 skos:exactMatch doid:0050577"]; !ok {
		t.Error("inverse of mutated mapping missing")
	}
}

func TestMutationTargetPrefix(t *testing.T) {
	m1 := mustMapping(t, "doid:1", vocab.DbXref, "mesh:a")
	m2 := mustMapping(t, "doid:2", vocab.DbXref, "umls:b")
	opts := Options{Mutations: []MutationRule{{
		SourcePrefix: "doid",
		TargetPrefix: "mesh",
		OldPredicate: vocab.DbXref,
		NewPredicate: vocab.ExactMatch,
		Confidence:   0.9,
	}}}
	result, err := newEngine(t, opts).Run(context.Background(), []mapping.Mapping{m1, m2})
	if err != nil {
		t.Fatal(err)
	}
	got := keys(result.Mappings)
	if _, ok := got["doid:1 skos:exactMatch mesh:a"]; !ok {
		t.Error("rule should fire for the matching target prefix")
	}
	if _, ok := got["doid:2 skos:exactMatch umls:b"]; ok {
		t.Error("rule must not fire for other target prefixes")
	}
}

func TestGeneralization(t *testing.T) {
	m := mustMapping(t, "a:1", vocab.EquivalentTo, "b:2")
	result, err := newEngine(t, Options{}).Run(context.Background(), []mapping.Mapping{m})
	if err != nil {
		t.Fatal(err)
	}
	got := keys(result.Mappings)
	general, ok := got["a:1 skos:exactMatch b:2"]
	if !ok {
		t.Fatal("equivalentTo must generalize to exactMatch")
	}
	re, ok := general.Evidence[0].(*mapping.ReasonedEvidence)
	if !ok || !re.Just.Equal(vocab.GeneralizationMapping) {
		t.Error("generalization must carry its own justification")
	}

	// Monotone: everything from the input survives.
	if _, ok := got[m.Key().String()]; !ok {
		t.Error("generalization must not drop the original")
	}
	if len(result.Mappings) < 1 {
		t.Error("output shrank")
	}
}

func TestMutualDbXrefRules(t *testing.T) {
	rules := MutualDbXrefRules([]string{"doid", "mesh", "umls"}, 0.95)
	if len(rules) != 6 {
		t.Fatalf("expected 6 ordered pairs, got %d", len(rules))
	}
	for _, r := range rules {
		if r.SourcePrefix == r.TargetPrefix {
			t.Error("self pair generated")
		}
		if r.Confidence != 0.95 {
			t.Error("confidence not propagated")
		}
	}
}

func TestRoundBudget(t *testing.T) {
	// A long exact-match path needs several rounds to close; a budget
	// of 1 must stop early and report it.
	var mappings []mapping.Mapping
	path := []string{"a:1", "b:1", "c:1", "d:1", "e:1", "f:1", "g:1"}
	for i := 0; i+1 < len(path); i++ {
		mappings = append(mappings, mustMapping(t, path[i], vocab.ExactMatch, path[i+1]))
	}
	result, err := newEngine(t, Options{MaxRounds: 1}).Run(context.Background(), mappings)
	if err != nil {
		t.Fatal(err)
	}
	if result.FixedPoint {
		t.Error("one round cannot close a six-edge path")
	}
	if result.LastRoundNew == 0 {
		t.Error("budget exhaustion must report last-round production")
	}

	full, err := newEngine(t, Options{MaxRounds: 10}).Run(context.Background(), mappings)
	if err != nil {
		t.Fatal(err)
	}
	if !full.FixedPoint {
		t.Error("ten rounds should close the path")
	}
	// Full closure over 7 nodes: 7*6 ordered pairs.
	if len(full.Mappings) != 42 {
		t.Errorf("expected 42 mappings in the closure, got %d", len(full.Mappings))
	}
}

func TestComponentSizeBound(t *testing.T) {
	m1 := mustMapping(t, "a:1", vocab.ExactMatch, "b:1")
	m2 := mustMapping(t, "b:1", vocab.ExactMatch, "c:1")
	result, err := newEngine(t, Options{MaxComponentSize: 2}).Run(context.Background(), []mapping.Mapping{m1, m2})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := keys(result.Mappings)["a:1 skos:exactMatch c:1"]; ok {
		t.Error("oversized component must not be chained")
	}
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := mustMapping(t, "a:1", vocab.ExactMatch, "b:2")
	_, err := newEngine(t, Options{}).Run(ctx, []mapping.Mapping{m})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if errors.CodeOf(err) != errors.Canceled {
		t.Errorf("expected CANCELED, got %s", errors.CodeOf(err))
	}
}
