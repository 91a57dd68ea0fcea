package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"sma/internal/logging"
	"sma/internal/mapping"
	"sma/internal/vocab"
)

// Options configures a property-graph export.
type Options struct {
	// Compress gzips every table.
	Compress bool
}

// Exporter writes a mapping collection as labeled-property-graph
// node and edge tables suitable for bulk import. Every record has a
// stable identifier: CURIEs for concepts, content hashes for
// mappings, evidences, and sets.
type Exporter struct {
	logger *logging.Logger
	opts   Options
}

// NewExporter creates an exporter.
func NewExporter(logger *logging.Logger, opts Options) *Exporter {
	return &Exporter{logger: logger, opts: opts}
}

// Export writes the node and edge tables into a directory.
func (e *Exporter) Export(ix *mapping.Index, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	tables := []struct {
		name   string
		header []string
		write  func(*csv.Writer, *mapping.Index) error
	}{
		{"nodes_concept.csv", []string{"curie:ID", "prefix", "identifier", "name"}, e.writeConcepts},
		{"nodes_mapping.csv", []string{"id:ID", "subject", "predicate", "object", "confidence"}, e.writeMappings},
		{"nodes_evidence.csv", []string{"id:ID", "kind", "justification", "confidence"}, e.writeEvidences},
		{"nodes_mapping_set.csv", []string{"id:ID", "name", "version", "license", "confidence"}, e.writeSets},
		{"edges_mapping.csv", []string{":START_ID", ":TYPE", ":END_ID"}, e.writeMappingEdges},
		{"edges_provenance.csv", []string{":START_ID", ":TYPE", ":END_ID"}, e.writeProvenanceEdges},
	}

	for _, table := range tables {
		if err := e.writeTable(dir, table.name, table.header, ix, table.write); err != nil {
			return err
		}
	}
	if e.logger != nil {
		e.logger.Info("property graph exported", logging.Fields{
			"dir":      dir,
			"mappings": ix.Len(),
		})
	}
	return nil
}

func (e *Exporter) writeTable(dir, name string, header []string, ix *mapping.Index, write func(*csv.Writer, *mapping.Index) error) error {
	path := filepath.Join(dir, name)
	if e.opts.Compress {
		path += ".gz"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if e.opts.Compress {
		gz = gzip.NewWriter(f)
		w = gz
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := write(cw, ix); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if gz != nil {
		return gz.Close()
	}
	return nil
}

func (e *Exporter) writeConcepts(cw *csv.Writer, ix *mapping.Index) error {
	seen := make(map[vocab.Reference]bool)
	emit := func(r vocab.Reference) error {
		key := r.Key()
		if seen[key] {
			return nil
		}
		seen[key] = true
		return cw.Write([]string{key.CURIE(), key.Prefix, key.Identifier, r.Name})
	}
	for _, m := range ix.Mappings() {
		for _, r := range []vocab.Reference{m.Subject, m.Predicate, m.Object} {
			if err := emit(r); err != nil {
				return err
			}
		}
		for _, ev := range m.Evidence {
			if simple, ok := ev.(*mapping.SimpleEvidence); ok && !simple.Author.IsZero() {
				if err := emit(simple.Author); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (e *Exporter) writeMappings(cw *csv.Writer, ix *mapping.Index) error {
	for _, m := range ix.Mappings() {
		key := m.Key()
		row := []string{
			key.Hash(),
			key.Subject.CURIE(),
			key.Predicate.CURIE(),
			key.Object.CURIE(),
			formatFloat(ix.AggregateConfidence(key)),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) writeEvidences(cw *csv.Writer, ix *mapping.Index) error {
	seen := make(map[string]bool)
	for _, m := range ix.Mappings() {
		for _, ev := range m.Evidence {
			h := ev.Hash()
			if seen[h] {
				continue
			}
			seen[h] = true
			row := []string{h, ev.Kind(), ev.Justification().CURIE(), formatFloat(ev.Confidence(ix))}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Exporter) writeSets(cw *csv.Writer, ix *mapping.Index) error {
	seen := make(map[string]bool)
	for _, m := range ix.Mappings() {
		for _, ev := range m.Evidence {
			simple, ok := ev.(*mapping.SimpleEvidence)
			if !ok || simple.MappingSet == nil {
				continue
			}
			set := simple.MappingSet
			h := set.Hash()
			if seen[h] {
				continue
			}
			seen[h] = true
			row := []string{h, set.Name, set.Version, set.License, formatFloat(set.Confidence)}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Exporter) writeMappingEdges(cw *csv.Writer, ix *mapping.Index) error {
	for _, m := range ix.Mappings() {
		key := m.Key()
		id := key.Hash()
		rows := [][]string{
			{id, "SUBJECT", key.Subject.CURIE()},
			{id, "PREDICATE", key.Predicate.CURIE()},
			{id, "OBJECT", key.Object.CURIE()},
		}
		for _, row := range rows {
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Exporter) writeProvenanceEdges(cw *csv.Writer, ix *mapping.Index) error {
	for _, m := range ix.Mappings() {
		mappingID := m.Key().Hash()
		for _, ev := range m.Evidence {
			evidenceID := ev.Hash()
			if err := cw.Write([]string{mappingID, "HAS_EVIDENCE", evidenceID}); err != nil {
				return err
			}
			switch typed := ev.(type) {
			case *mapping.SimpleEvidence:
				if typed.MappingSet != nil {
					if err := cw.Write([]string{evidenceID, "FROM_SET", typed.MappingSet.Hash()}); err != nil {
						return err
					}
				}
				if !typed.Author.IsZero() {
					if err := cw.Write([]string{evidenceID, "HAS_AUTHOR", typed.Author.Key().CURIE()}); err != nil {
						return err
					}
				}
			case *mapping.ReasonedEvidence:
				for _, parent := range typed.Parents {
					if err := cw.Write([]string{evidenceID, "DERIVED_FROM", parent.Hash()}); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
