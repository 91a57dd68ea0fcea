package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"sma/internal/mapping"
	"sma/internal/vocab"
)

func buildIndex(t *testing.T) *mapping.Index {
	t.Helper()
	set := &mapping.MappingSet{Name: "biomappings", Confidence: 0.95}
	m1, err := mapping.New(
		vocab.MustParseCURIE("chebi:1234"), vocab.ExactMatch, vocab.MustParseCURIE("mesh:C067604"),
		&mapping.SimpleEvidence{
			Just:       vocab.ManualMapping,
			Conf:       0.9,
			Author:     vocab.MustParseCURIE("orcid:0000-0003-4423-4370"),
			MappingSet: set,
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := mapping.New(
		vocab.MustParseCURIE("mesh:C067604"), vocab.ExactMatch, vocab.MustParseCURIE("chebi:1234"),
		&mapping.ReasonedEvidence{Just: vocab.InversionMapping, Factor: 1, Parents: []mapping.TripleKey{m1.Key()}},
	)
	if err != nil {
		t.Fatal(err)
	}
	return mapping.NewIndex([]mapping.Mapping{m1, m2})
}

func readTable(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return rows
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	ix := buildIndex(t)
	if err := NewExporter(nil, Options{}).Export(ix, dir); err != nil {
		t.Fatalf("export: %v", err)
	}

	concepts := readTable(t, filepath.Join(dir, "nodes_concept.csv"))
	// chebi, mesh, exactMatch predicate, author
	if len(concepts) != 5 {
		t.Errorf("concepts: expected header + 4 rows, got %d", len(concepts))
	}

	mappings := readTable(t, filepath.Join(dir, "nodes_mapping.csv"))
	if len(mappings) != 3 {
		t.Fatalf("mappings: expected header + 2 rows, got %d", len(mappings))
	}
	ids := map[string]bool{}
	for _, row := range mappings[1:] {
		if len(row[0]) != 64 {
			t.Errorf("mapping id should be a sha256 hex digest, got %q", row[0])
		}
		if ids[row[0]] {
			t.Error("duplicate mapping id")
		}
		ids[row[0]] = true
	}

	evidences := readTable(t, filepath.Join(dir, "nodes_evidence.csv"))
	if len(evidences) != 3 {
		t.Errorf("evidences: expected header + 2 rows, got %d", len(evidences))
	}

	sets := readTable(t, filepath.Join(dir, "nodes_mapping_set.csv"))
	if len(sets) != 2 {
		t.Errorf("sets: expected header + 1 row, got %d", len(sets))
	}

	edges := readTable(t, filepath.Join(dir, "edges_mapping.csv"))
	if len(edges) != 7 {
		t.Errorf("mapping edges: expected header + 6 rows, got %d", len(edges))
	}

	provenance := readTable(t, filepath.Join(dir, "edges_provenance.csv"))
	types := map[string]int{}
	for _, row := range provenance[1:] {
		types[row[1]]++
	}
	if types["HAS_EVIDENCE"] != 2 {
		t.Errorf("HAS_EVIDENCE edges: got %d, want 2", types["HAS_EVIDENCE"])
	}
	if types["FROM_SET"] != 1 || types["HAS_AUTHOR"] != 1 || types["DERIVED_FROM"] != 1 {
		t.Errorf("provenance edge counts: %v", types)
	}
}

func TestExportStableAcrossRuns(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	exporter := NewExporter(nil, Options{})
	if err := exporter.Export(buildIndex(t), dirA); err != nil {
		t.Fatal(err)
	}
	if err := exporter.Export(buildIndex(t), dirB); err != nil {
		t.Fatal(err)
	}
	a := readTable(t, filepath.Join(dirA, "nodes_mapping.csv"))
	b := readTable(t, filepath.Join(dirB, "nodes_mapping.csv"))
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("row %d differs across runs: %v vs %v", i, a[i], b[i])
			}
		}
	}
}

func TestExportCompressed(t *testing.T) {
	dir := t.TempDir()
	if err := NewExporter(nil, Options{Compress: true}).Export(buildIndex(t), dir); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "nodes_mapping.csv.gz")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("compressed table missing: %v", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	rows, err := csv.NewReader(gz).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("expected header + 2 rows, got %d", len(rows))
	}
}
