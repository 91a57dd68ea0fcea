package mapping

import (
	"testing"

	"sma/internal/vocab"
)

func ref(curie string) vocab.Reference {
	return vocab.MustParseCURIE(curie)
}

func simpleEv(confidence float64) Evidence {
	return &SimpleEvidence{Just: vocab.ManualMapping, Conf: confidence}
}

func mustMapping(t *testing.T, s string, p vocab.Reference, o string, evidence ...Evidence) Mapping {
	t.Helper()
	if len(evidence) == 0 {
		evidence = []Evidence{simpleEv(1.0)}
	}
	m, err := New(ref(s), p, ref(o), evidence...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestNewRejectsInvalid(t *testing.T) {
	if _, err := New(ref("a:1"), vocab.ExactMatch, ref("a:1"), simpleEv(1)); err == nil {
		t.Error("self-mapping must be rejected")
	}
	if _, err := New(ref("a:1"), vocab.ExactMatch, ref("b:2")); err == nil {
		t.Error("empty evidence must be rejected")
	}
}

func TestDeduplicate(t *testing.T) {
	e1 := simpleEv(0.8)
	e2 := &SimpleEvidence{Just: vocab.LexicalMapping, Conf: 0.5}
	m1 := mustMapping(t, "a:1", vocab.ExactMatch, "b:2", e1)
	m2 := mustMapping(t, "a:1", vocab.ExactMatch, "b:2", e2)
	m3 := mustMapping(t, "a:1", vocab.ExactMatch, "b:2", e1)

	got := Deduplicate([]Mapping{m1, m2, m3})
	if len(got) != 1 {
		t.Fatalf("expected 1 mapping, got %d", len(got))
	}
	if len(got[0].Evidence) != 2 {
		t.Errorf("expected 2 distinct evidences, got %d", len(got[0].Evidence))
	}

	t.Run("idempotent", func(t *testing.T) {
		again := Deduplicate(got)
		if len(again) != 1 || len(again[0].Evidence) != 2 {
			t.Error("deduplicate must be idempotent")
		}
	})

	t.Run("commutative over concatenation", func(t *testing.T) {
		left := Deduplicate(append([]Mapping{m1}, m2))
		right := Deduplicate(append([]Mapping{m2}, m1))
		if len(left) != len(right) || len(left[0].Evidence) != len(right[0].Evidence) {
			t.Error("order of concatenation must not change the result")
		}
	})
}

func TestEvidenceHashStability(t *testing.T) {
	setA := &MappingSet{ID: "id-1", Name: "biomappings", Version: "1.0", Confidence: 0.9}
	setB := &MappingSet{ID: "id-2", Name: "biomappings", Version: "1.0", Confidence: 0.9}
	a := &SimpleEvidence{Just: vocab.ManualMapping, Conf: 0.8, MappingSet: setA}
	b := &SimpleEvidence{Just: vocab.ManualMapping, Conf: 0.8, MappingSet: setB}
	if a.Hash() != b.Hash() {
		t.Error("transient set ids must not affect evidence hashes")
	}

	named := &SimpleEvidence{
		Just: vocab.Reference{Prefix: "semapv", Identifier: "ManualMappingCuration", Name: "renamed"},
		Conf: 0.8, MappingSet: setA,
	}
	if a.Hash() != named.Hash() {
		t.Error("display names must not affect evidence hashes")
	}

	c := &SimpleEvidence{Just: vocab.LexicalMapping, Conf: 0.8, MappingSet: setA}
	if a.Hash() == c.Hash() {
		t.Error("different justifications must hash differently")
	}
}

func TestNoisyOr(t *testing.T) {
	cases := []struct {
		name string
		in   []float64
		want float64
	}{
		{"empty", nil, 0},
		{"single", []float64{0.7}, 0.7},
		{"spec S4", []float64{0.8, 0.5}, 0.9},
		{"certain", []float64{1.0, 0.2}, 1.0},
		{"zero", []float64{0, 0}, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := NoisyOr(c.in)
			if diff := got - c.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestAggregateConfidence(t *testing.T) {
	t.Run("simple evidences combine by noisy-or", func(t *testing.T) {
		m := mustMapping(t, "a:1", vocab.ExactMatch, "b:2", simpleEv(0.8), &SimpleEvidence{Just: vocab.LexicalMapping, Conf: 0.5})
		ix := NewIndex([]Mapping{m})
		got := ix.AggregateConfidence(m.Key())
		if diff := got - 0.9; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("got %v, want 0.9", got)
		}
	})

	t.Run("mapping set confidence scales evidence", func(t *testing.T) {
		set := &MappingSet{Name: "xrefs", Confidence: 0.5}
		m := mustMapping(t, "a:1", vocab.ExactMatch, "b:2", &SimpleEvidence{Just: vocab.ManualMapping, Conf: 0.8, MappingSet: set})
		ix := NewIndex([]Mapping{m})
		got := ix.AggregateConfidence(m.Key())
		if diff := got - 0.4; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("got %v, want 0.4", got)
		}
	})

	t.Run("reasoned evidence resolves parents", func(t *testing.T) {
		parent := mustMapping(t, "a:1", vocab.DbXref, "b:2", simpleEv(0.8))
		derived := mustMapping(t, "a:1", vocab.ExactMatch, "b:2", &ReasonedEvidence{
			Just:    vocab.KnowledgeMapping,
			Factor:  0.5,
			Parents: []TripleKey{parent.Key()},
		})
		ix := NewIndex([]Mapping{parent, derived})
		got := ix.AggregateConfidence(derived.Key())
		if diff := got - 0.4; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("got %v, want 0.4", got)
		}
	})

	t.Run("adding evidence never decreases confidence", func(t *testing.T) {
		m := mustMapping(t, "a:1", vocab.ExactMatch, "b:2", simpleEv(0.6))
		before := NewIndex([]Mapping{m}).AggregateConfidence(m.Key())
		grown := m.WithEvidence(&SimpleEvidence{Just: vocab.LexicalMapping, Conf: 0.3})
		after := NewIndex([]Mapping{grown}).AggregateConfidence(grown.Key())
		if after < before {
			t.Errorf("confidence decreased from %v to %v", before, after)
		}
	})

	t.Run("mutual inverse derivations terminate", func(t *testing.T) {
		a := mustMapping(t, "a:1", vocab.ExactMatch, "b:2", simpleEv(0.8))
		b := mustMapping(t, "b:2", vocab.ExactMatch, "a:1", &ReasonedEvidence{
			Just: vocab.InversionMapping, Factor: 1, Parents: []TripleKey{a.Key()},
		})
		// a also gains an inversion evidence citing b, forming a cycle
		// over triple keys.
		a = a.WithEvidence(&ReasonedEvidence{
			Just: vocab.InversionMapping, Factor: 1, Parents: []TripleKey{b.Key()},
		})
		ix := NewIndex([]Mapping{a, b})
		got := ix.AggregateConfidence(a.Key())
		if got < 0.8-1e-9 || got > 1 {
			t.Errorf("cycle resolution returned %v", got)
		}
	})

	t.Run("bounds", func(t *testing.T) {
		m := mustMapping(t, "a:1", vocab.ExactMatch, "b:2", simpleEv(2.5), simpleEv(-1))
		ix := NewIndex([]Mapping{m})
		got := ix.AggregateConfidence(m.Key())
		if got < 0 || got > 1 {
			t.Errorf("aggregate %v out of bounds", got)
		}
	})
}

func TestFilters(t *testing.T) {
	m1 := mustMapping(t, "chebi:1", vocab.ExactMatch, "mesh:2")
	m2 := mustMapping(t, "mesh:3", vocab.DbXref, "umls:4")
	m3 := mustMapping(t, "efo:5", vocab.BroadMatch, "efo:6")
	all := []Mapping{m1, m2, m3}

	t.Run("predicates", func(t *testing.T) {
		got := FilterPredicates(all, []vocab.Reference{vocab.ExactMatch})
		if len(got) != 1 || !got[0].Subject.Equal(ref("chebi:1")) {
			t.Errorf("unexpected result %v", got)
		}
	})

	t.Run("keep prefixes", func(t *testing.T) {
		got := FilterPrefixes(all, PrefixFilter{Keep: []string{"chebi", "mesh", "umls"}})
		if len(got) != 2 {
			t.Errorf("expected 2, got %d", len(got))
		}
	})

	t.Run("remove prefixes", func(t *testing.T) {
		got := FilterPrefixes(all, PrefixFilter{Remove: []string{"umls"}})
		if len(got) != 2 {
			t.Errorf("expected 2, got %d", len(got))
		}
	})

	t.Run("keep and remove compose", func(t *testing.T) {
		got := FilterPrefixes(all, PrefixFilter{Keep: []string{"mesh", "umls", "chebi"}, Remove: []string{"umls"}})
		if len(got) != 1 || !got[0].Subject.Equal(ref("chebi:1")) {
			t.Errorf("unexpected result %v", got)
		}
	})

	t.Run("internal", func(t *testing.T) {
		got := FilterInternal(all)
		if len(got) != 2 {
			t.Errorf("expected efo-efo mapping dropped, got %d", len(got))
		}
	})

	t.Run("min confidence", func(t *testing.T) {
		low := mustMapping(t, "a:1", vocab.ExactMatch, "b:2", simpleEv(0.2))
		high := mustMapping(t, "a:3", vocab.ExactMatch, "b:4", simpleEv(0.9))
		got := FilterMinConfidence([]Mapping{low, high}, 0.5)
		if len(got) != 1 || !got[0].Subject.Equal(ref("a:3")) {
			t.Errorf("unexpected result %v", got)
		}
	})

	t.Run("zero confidence retained until thresholded", func(t *testing.T) {
		zero := mustMapping(t, "a:1", vocab.ExactMatch, "b:2", simpleEv(0))
		if got := FilterMinConfidence([]Mapping{zero}, 0); len(got) != 1 {
			t.Error("threshold 0 must retain zero-confidence mappings")
		}
		if got := FilterMinConfidence([]Mapping{zero}, 0.01); len(got) != 0 {
			t.Error("positive threshold must drop zero-confidence mappings")
		}
	})

	t.Run("negative triples", func(t *testing.T) {
		got := FilterTriples(all, []Mapping{m2})
		if len(got) != 2 {
			t.Errorf("expected 2, got %d", len(got))
		}
		for _, m := range got {
			if m.Key() == m2.Key() {
				t.Error("negative triple survived the filter")
			}
		}
	})
}

func TestSealEvidence(t *testing.T) {
	parent := mustMapping(t, "doid:1", vocab.DbXref, "mesh:2", simpleEv(0.8))
	derived := mustMapping(t, "doid:1", vocab.ExactMatch, "mesh:2", &ReasonedEvidence{
		Just:    vocab.KnowledgeMapping,
		Factor:  0.5,
		Parents: []TripleKey{parent.Key()},
	})
	all := []Mapping{parent, derived}

	removed := map[TripleKey]bool{parent.Key(): true}
	sealed := SealEvidence(all, removed)
	filtered := FilterTriples(sealed, []Mapping{parent})
	if len(filtered) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(filtered))
	}

	ix := NewIndex(filtered)
	got := ix.AggregateConfidence(filtered[0].Key())
	if diff := got - 0.4; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("sealed confidence: got %v, want 0.4", got)
	}
	re, ok := filtered[0].Evidence[0].(*ReasonedEvidence)
	if !ok || !re.Summarized {
		t.Error("evidence should be summarized after sealing")
	}
	if len(re.Parents) != 1 {
		t.Error("provenance parents must survive sealing")
	}
}

func TestIndexLookups(t *testing.T) {
	m1 := mustMapping(t, "chebi:1", vocab.ExactMatch, "mesh:2")
	m2 := mustMapping(t, "chebi:1", vocab.DbXref, "umls:3")
	m3 := mustMapping(t, "mesh:4", vocab.ExactMatch, "mesh:2")
	ix := NewIndex([]Mapping{m1, m2, m3})

	if got := ix.BySubject(ref("chebi:1")); len(got) != 2 {
		t.Errorf("BySubject: expected 2, got %d", len(got))
	}
	if got := ix.ByObject(ref("mesh:2")); len(got) != 2 {
		t.Errorf("ByObject: expected 2, got %d", len(got))
	}
	if got := ix.BySubjectPredicate(ref("chebi:1"), vocab.ExactMatch); len(got) != 1 {
		t.Errorf("BySubjectPredicate: expected 1, got %d", len(got))
	}
	if got := ix.References(); len(got) != 4 {
		t.Errorf("References: expected 4, got %d", len(got))
	}
}

func TestProject(t *testing.T) {
	m1 := mustMapping(t, "chebi:1", vocab.ExactMatch, "mesh:a")
	m2 := mustMapping(t, "chebi:2", vocab.ExactMatch, "mesh:b")
	// chebi:3 maps to two mesh terms; both are suspicious.
	m3 := mustMapping(t, "chebi:3", vocab.ExactMatch, "mesh:c")
	m4 := mustMapping(t, "chebi:3", vocab.ExactMatch, "mesh:d")
	other := mustMapping(t, "umls:9", vocab.ExactMatch, "mesh:a")

	projected, suspicious := Project([]Mapping{m1, m2, m3, m4, other}, "chebi", "mesh")
	if len(projected) != 2 {
		t.Fatalf("expected 2 projected, got %d", len(projected))
	}
	subjects := make(map[string]bool)
	for _, m := range projected {
		if subjects[m.Subject.CURIE()] {
			t.Error("projection must be functional on subjects")
		}
		subjects[m.Subject.CURIE()] = true
	}
	if len(suspicious) != 2 {
		t.Errorf("expected 2 suspicious, got %d", len(suspicious))
	}
}

func TestManyToMany(t *testing.T) {
	m1 := mustMapping(t, "chebi:1", vocab.ExactMatch, "mesh:a")
	m2 := mustMapping(t, "chebi:1", vocab.DbXref, "mesh:b")
	m3 := mustMapping(t, "chebi:2", vocab.ExactMatch, "mesh:c")
	got := ManyToMany([]Mapping{m1, m2, m3})
	if len(got) != 2 {
		t.Fatalf("expected the chebi:1 pair, got %d mappings", len(got))
	}
	for _, m := range got {
		if !m.Subject.Equal(ref("chebi:1")) {
			t.Errorf("unexpected mapping %s", m.Key())
		}
	}
}

func TestCountSourceTarget(t *testing.T) {
	mappings := []Mapping{
		mustMapping(t, "chebi:1", vocab.ExactMatch, "mesh:a"),
		mustMapping(t, "chebi:2", vocab.ExactMatch, "mesh:b"),
		mustMapping(t, "mesh:a", vocab.ExactMatch, "chebi:1"),
	}
	got := CountSourceTarget(mappings)
	if len(got) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(got))
	}
	if got[0].SourcePrefix != "chebi" || got[0].Count != 2 {
		t.Errorf("unexpected first row %+v", got[0])
	}
}
