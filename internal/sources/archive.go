package sources

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"sma/internal/errors"
	"sma/internal/mapping"
	"sma/internal/vocab"
)

// The archive format is one JSON object per line, each the full
// serialization of a single mapping with all evidences. Reasoned
// parents are referenced by triple CURIEs, so the stream is both
// restartable and order-independent: a consumer can resolve parents
// against whatever subset it has loaded.

type wireReference struct {
	Prefix     string `json:"prefix"`
	Identifier string `json:"identifier"`
	Name       string `json:"name,omitempty"`
}

type wireTriple struct {
	Subject   string `json:"s"`
	Predicate string `json:"p"`
	Object    string `json:"o"`
}

type wireEvidence struct {
	Kind          string            `json:"kind"`
	Justification string            `json:"justification"`
	Confidence    float64           `json:"confidence,omitempty"`
	Author        string            `json:"author,omitempty"`
	MappingSet    *wireSet          `json:"mapping_set,omitempty"`
	Factor        float64           `json:"factor,omitempty"`
	Summarized    bool              `json:"summarized,omitempty"`
	Parents       []wireTriple      `json:"parents,omitempty"`
}

type wireSet struct {
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name"`
	Version    string  `json:"version,omitempty"`
	License    string  `json:"license,omitempty"`
	Confidence float64 `json:"confidence"`
}

type wireMapping struct {
	Subject   wireReference  `json:"subject"`
	Predicate wireReference  `json:"predicate"`
	Object    wireReference  `json:"object"`
	Evidence  []wireEvidence `json:"evidence"`
}

func toWireReference(r vocab.Reference) wireReference {
	return wireReference{Prefix: r.Prefix, Identifier: r.Identifier, Name: r.Name}
}

func (w wireReference) reference() vocab.Reference {
	return vocab.Reference{Prefix: w.Prefix, Identifier: w.Identifier, Name: w.Name}
}

func toWireTriple(k mapping.TripleKey) wireTriple {
	return wireTriple{Subject: k.Subject.CURIE(), Predicate: k.Predicate.CURIE(), Object: k.Object.CURIE()}
}

func (w wireTriple) key() (mapping.TripleKey, error) {
	s, err := vocab.ParseCURIE(w.Subject)
	if err != nil {
		return mapping.TripleKey{}, err
	}
	p, err := vocab.ParseCURIE(w.Predicate)
	if err != nil {
		return mapping.TripleKey{}, err
	}
	o, err := vocab.ParseCURIE(w.Object)
	if err != nil {
		return mapping.TripleKey{}, err
	}
	return mapping.TripleKey{Subject: s, Predicate: p, Object: o}, nil
}

func toWireMapping(m mapping.Mapping) wireMapping {
	wm := wireMapping{
		Subject:   toWireReference(m.Subject),
		Predicate: toWireReference(m.Predicate),
		Object:    toWireReference(m.Object),
	}
	for _, e := range m.Evidence {
		switch ev := e.(type) {
		case *mapping.SimpleEvidence:
			we := wireEvidence{
				Kind:          "simple",
				Justification: ev.Just.CURIE(),
				Confidence:    ev.Conf,
			}
			if !ev.Author.IsZero() {
				we.Author = ev.Author.CURIE()
			}
			if ev.MappingSet != nil {
				we.MappingSet = &wireSet{
					ID:         ev.MappingSet.ID,
					Name:       ev.MappingSet.Name,
					Version:    ev.MappingSet.Version,
					License:    ev.MappingSet.License,
					Confidence: ev.MappingSet.Confidence,
				}
			}
			wm.Evidence = append(wm.Evidence, we)
		case *mapping.ReasonedEvidence:
			we := wireEvidence{
				Kind:          "reasoned",
				Justification: ev.Just.CURIE(),
				Factor:        ev.Factor,
				Summarized:    ev.Summarized,
			}
			for _, parent := range ev.Parents {
				we.Parents = append(we.Parents, toWireTriple(parent))
			}
			wm.Evidence = append(wm.Evidence, we)
		}
	}
	return wm
}

func (w wireMapping) mapping() (mapping.Mapping, error) {
	evidence := make([]mapping.Evidence, 0, len(w.Evidence))
	for _, we := range w.Evidence {
		justification, err := vocab.ParseCURIE(we.Justification)
		if err != nil {
			return mapping.Mapping{}, err
		}
		switch we.Kind {
		case "simple":
			e := &mapping.SimpleEvidence{Just: justification, Conf: we.Confidence}
			if we.Author != "" {
				author, err := vocab.ParseCURIE(we.Author)
				if err != nil {
					return mapping.Mapping{}, err
				}
				e.Author = author
			}
			if we.MappingSet != nil {
				e.MappingSet = &mapping.MappingSet{
					ID:         we.MappingSet.ID,
					Name:       we.MappingSet.Name,
					Version:    we.MappingSet.Version,
					License:    we.MappingSet.License,
					Confidence: we.MappingSet.Confidence,
				}
			}
			evidence = append(evidence, e)
		case "reasoned":
			e := &mapping.ReasonedEvidence{Just: justification, Factor: we.Factor, Summarized: we.Summarized}
			for _, wp := range we.Parents {
				key, err := wp.key()
				if err != nil {
					return mapping.Mapping{}, err
				}
				e.Parents = append(e.Parents, key)
			}
			evidence = append(evidence, e)
		default:
			return mapping.Mapping{}, fmt.Errorf("unknown evidence kind %q", we.Kind)
		}
	}
	return mapping.New(w.Subject.reference(), w.Predicate.reference(), w.Object.reference(), evidence...)
}

// WriteArchive streams a collection as line-delimited JSON.
func WriteArchive(w io.Writer, ix *mapping.Index) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, m := range ix.Mappings() {
		if err := enc.Encode(toWireMapping(m)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteArchiveFile writes the archive to a path, compressing by
// extension (.gz, .zst).
func WriteArchiveFile(path string, ix *mapping.Index) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	cw, err := compressWriter(f, path)
	if err != nil {
		return err
	}
	if err := WriteArchive(cw, ix); err != nil {
		cw.Close()
		return err
	}
	return cw.Close()
}

// ReadArchive parses line-delimited mappings, deduplicating by
// triple.
func ReadArchive(r io.Reader) ([]mapping.Mapping, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<26)
	var out []mapping.Mapping
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var wm wireMapping
		if err := json.Unmarshal(raw, &wm); err != nil {
			return nil, errors.Wrap(errors.SourceMalformed, fmt.Sprintf("archive line %d", line), err)
		}
		m, err := wm.mapping()
		if err != nil {
			return nil, errors.Wrap(errors.SourceMalformed, fmt.Sprintf("archive line %d", line), err)
		}
		out = append(out, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.SourceMalformed, "read archive", err)
	}
	return mapping.Deduplicate(out), nil
}

// ReadArchiveFile reads an archive from a path, decompressing by
// extension.
func ReadArchiveFile(path string) ([]mapping.Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.SourceUnavailable, "open "+path, err)
	}
	defer f.Close()
	r, err := decompressReader(f, path)
	if err != nil {
		return nil, errors.Wrap(errors.SourceMalformed, "decompress "+path, err)
	}
	defer r.Close()
	return ReadArchive(r)
}

// ArchiveAdapter loads a previously written archive as a source.
type ArchiveAdapter struct{}

// Load implements Adapter.
func (a *ArchiveAdapter) Load(ctx context.Context, desc Descriptor) ([]mapping.Mapping, error) {
	f, path, err := openSource(desc)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := decompressReader(f, path)
	if err != nil {
		return nil, errors.Wrap(errors.SourceMalformed, "decompress "+path, err)
	}
	defer r.Close()
	mappings, err := ReadArchive(r)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.Canceled, "loading "+path, err)
	}
	return mappings, nil
}
