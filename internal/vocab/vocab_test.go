package vocab

import (
	"testing"

	"sma/internal/errors"
)

func TestParseCURIE(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		r, err := ParseCURIE("chebi:1234")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Prefix != "chebi" || r.Identifier != "1234" {
			t.Errorf("got %q/%q", r.Prefix, r.Identifier)
		}
		if r.CURIE() != "chebi:1234" {
			t.Errorf("round trip: got %q", r.CURIE())
		}
	})

	t.Run("splits at first colon", func(t *testing.T) {
		r, err := ParseCURIE("orcid:0000-0001:extra")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Identifier != "0000-0001:extra" {
			t.Errorf("identifier should keep later colons, got %q", r.Identifier)
		}
	})

	for _, bad := range []string{"", "nocolon", ":id", "prefix:", "pre fix:id", "prefix:i d"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, err := ParseCURIE(bad)
			if err == nil {
				t.Fatalf("expected error for %q", bad)
			}
			if errors.CodeOf(err) != errors.MalformedCurie {
				t.Errorf("expected MALFORMED_CURIE, got %s", errors.CodeOf(err))
			}
		})
	}
}

func TestReferenceEquality(t *testing.T) {
	a := Reference{Prefix: "mesh", Identifier: "C562966", Name: "some disease"}
	b := Reference{Prefix: "mesh", Identifier: "C562966"}
	if !a.Equal(b) {
		t.Error("names must not participate in equality")
	}
	if a.Key() != b.Key() {
		t.Error("Key must strip display names")
	}
	if a.Equal(Reference{Prefix: "MESH", Identifier: "C562966"}) {
		t.Error("prefix comparison must be case-sensitive")
	}
}

func TestPredicateTable(t *testing.T) {
	table := NewPredicateTable()

	t.Run("inverses", func(t *testing.T) {
		cases := []struct {
			p, inverse Reference
		}{
			{ExactMatch, ExactMatch},
			{BroadMatch, NarrowMatch},
			{NarrowMatch, BroadMatch},
			{CloseMatch, CloseMatch},
			{EquivalentTo, EquivalentTo},
			{DbXref, DbXref},
		}
		for _, c := range cases {
			info, ok := table.Lookup(c.p)
			if !ok {
				t.Fatalf("%s not registered", c.p)
			}
			if !info.Inverse.Equal(c.inverse) {
				t.Errorf("%s inverse: got %s, want %s", c.p, info.Inverse, c.inverse)
			}
		}
		info, _ := table.Lookup(ReplacedBy)
		if info.Invertible() {
			t.Error("replacedBy must not invert")
		}
	})

	t.Run("transitivity", func(t *testing.T) {
		for _, p := range []Reference{ExactMatch, EquivalentTo, ReplacedBy} {
			info, _ := table.Lookup(p)
			if !info.Transitive {
				t.Errorf("%s should be transitive", p)
			}
		}
		for _, p := range []Reference{DbXref, CloseMatch, BroadMatch} {
			info, _ := table.Lookup(p)
			if info.Transitive {
				t.Errorf("%s should not be transitive", p)
			}
		}
	})

	t.Run("generalizations", func(t *testing.T) {
		info, _ := table.Lookup(EquivalentTo)
		if !info.GeneralizesTo.Equal(ExactMatch) {
			t.Errorf("equivalentTo should generalize to exactMatch, got %s", info.GeneralizesTo)
		}
		info, _ = table.Lookup(BroadMatch)
		if !info.GeneralizesTo.Equal(RelatedMatch) {
			t.Errorf("broadMatch should generalize to relatedMatch, got %s", info.GeneralizesTo)
		}
	})

	t.Run("unknown predicates are opaque", func(t *testing.T) {
		custom := MustParseCURIE("my:customRelation")
		info, ok := table.Lookup(custom)
		if ok {
			t.Fatal("unregistered predicate reported as known")
		}
		if info.Invertible() || info.Transitive || !info.GeneralizesTo.IsZero() {
			t.Error("unknown predicate must be opaque")
		}
		if !table.FirstSighting(custom) {
			t.Error("first sighting should report true")
		}
		if table.FirstSighting(custom) {
			t.Error("second sighting should report false")
		}
	})
}

func TestCondenseChain(t *testing.T) {
	table := NewPredicateTable()
	cases := []struct {
		name  string
		chain []Reference
		want  Reference
		ok    bool
	}{
		{"all exact", []Reference{ExactMatch, ExactMatch}, ExactMatch, true},
		{"all equivalent", []Reference{EquivalentTo, EquivalentTo, EquivalentTo}, EquivalentTo, true},
		{"all replaced by", []Reference{ReplacedBy, ReplacedBy}, ReplacedBy, true},
		{"exact plus broad", []Reference{ExactMatch, BroadMatch}, BroadMatch, true},
		{"broad plus exact", []Reference{BroadMatch, ExactMatch, ExactMatch}, BroadMatch, true},
		{"exact plus narrow", []Reference{NarrowMatch, ExactMatch}, NarrowMatch, true},
		{"broad plus narrow", []Reference{BroadMatch, NarrowMatch}, Reference{}, false},
		{"single broad", []Reference{BroadMatch}, Reference{}, false},
		{"dbxref chain", []Reference{DbXref, DbXref}, Reference{}, false},
		{"empty", nil, Reference{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := table.CondenseChain(c.chain)
			if ok != c.ok {
				t.Fatalf("ok: got %v, want %v", ok, c.ok)
			}
			if ok && !got.Equal(c.want) {
				t.Errorf("got %s, want %s", got, c.want)
			}
		})
	}
}
