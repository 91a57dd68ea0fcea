package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"sma/internal/errors"
	"sma/internal/logging"
	"sma/internal/mapping"
	"sma/internal/vocab"
)

// tabularColumns is the fixed header of the tabular interchange
// format: one row per (mapping, evidence) pair.
var tabularColumns = []string{
	"subject_id",
	"predicate_id",
	"object_id",
	"mapping_justification",
	"confidence",
	"author_id",
	"mapping_set",
	"mapping_set_version",
	"mapping_set_license",
	"mapping_set_confidence",
}

// TabularAdapter loads the tabular interchange format. Rows with
// malformed references are skipped with a warning unless Strict is
// set. Readers deduplicate by triple on load.
type TabularAdapter struct {
	Strict bool
	Logger *logging.Logger
}

// Load implements Adapter. The descriptor's confidence scales the
// mapping set attached to rows that don't name one.
func (a *TabularAdapter) Load(ctx context.Context, desc Descriptor) ([]mapping.Mapping, error) {
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

	fallback := &mapping.MappingSet{Name: path, Confidence: desc.Confidence}
	if desc.Prefix != "" {
		fallback.Name = desc.Prefix
	}
	mappings, err := a.Read(r, fallback)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.Canceled, "loading "+path, err)
	}
	return mappings, nil
}

// Read parses tabular rows from a reader. defaultSet is attached to
// rows without mapping-set columns; it may be nil.
func (a *TabularAdapter) Read(r io.Reader, defaultSet *mapping.MappingSet) ([]mapping.Mapping, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.Comment = '#'

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.SourceMalformed, "read header", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"subject_id", "predicate_id", "object_id", "mapping_justification"} {
		if _, ok := col[required]; !ok {
			return nil, errors.Newf(errors.SourceMalformed, "missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	sets := make(map[string]*mapping.MappingSet)
	var out []mapping.Mapping
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrap(errors.SourceMalformed, fmt.Sprintf("row %d", line), err)
		}

		m, err := a.parseRow(row, field, defaultSet, sets)
		if err == nil {
			out = append(out, m)
			continue
		}
		if a.Strict {
			return nil, errors.Wrap(errors.MalformedCurie, fmt.Sprintf("row %d", line), err)
		}
		if a.Logger != nil {
			a.Logger.Warn("skipping malformed row", logging.Fields{"row": line, "error": err.Error()})
		}
	}
	return mapping.Deduplicate(out), nil
}

func (a *TabularAdapter) parseRow(
	row []string,
	field func([]string, string) string,
	defaultSet *mapping.MappingSet,
	sets map[string]*mapping.MappingSet,
) (mapping.Mapping, error) {
	subject, err := vocab.ParseCURIE(field(row, "subject_id"))
	if err != nil {
		return mapping.Mapping{}, err
	}
	predicate, err := vocab.ParseCURIE(field(row, "predicate_id"))
	if err != nil {
		return mapping.Mapping{}, err
	}
	object, err := vocab.ParseCURIE(field(row, "object_id"))
	if err != nil {
		return mapping.Mapping{}, err
	}

	justification, err := vocab.ParseCURIE(field(row, "mapping_justification"))
	if err != nil {
		justification = vocab.UnspecifiedMapping
	}

	confidence := 1.0
	if raw := field(row, "confidence"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			return mapping.Mapping{}, errors.Newf(errors.SourceMalformed, "bad confidence %q", raw)
		}
		confidence = parsed
	}

	evidence := &mapping.SimpleEvidence{Just: justification, Conf: confidence}
	if raw := field(row, "author_id"); raw != "" {
		author, err := vocab.ParseCURIE(raw)
		if err != nil {
			return mapping.Mapping{}, err
		}
		evidence.Author = author
	}

	if name := field(row, "mapping_set"); name != "" {
		setKey := name + "|" + field(row, "mapping_set_version")
		set, ok := sets[setKey]
		if !ok {
			setConfidence := 1.0
			if raw := field(row, "mapping_set_confidence"); raw != "" {
				parsed, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					return mapping.Mapping{}, errors.Newf(errors.SourceMalformed, "bad mapping_set_confidence %q", raw)
				}
				setConfidence = parsed
			}
			set = mapping.NewMappingSet(name, field(row, "mapping_set_version"), field(row, "mapping_set_license"), setConfidence)
			sets[setKey] = set
		}
		evidence.MappingSet = set
	} else if defaultSet != nil {
		evidence.MappingSet = defaultSet
	}

	return mapping.New(subject, predicate, object, evidence)
}

// WriteTabular writes a collection in the tabular interchange format,
// one row per evidence. Reasoned evidence rows carry the resolved
// confidence; full provenance lives in the archive format.
func WriteTabular(w io.Writer, ix *mapping.Index) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(tabularColumns); err != nil {
		return err
	}
	for _, m := range ix.Mappings() {
		for _, e := range m.Evidence {
			row := make([]string, len(tabularColumns))
			row[0] = m.Subject.CURIE()
			row[1] = m.Predicate.CURIE()
			row[2] = m.Object.CURIE()
			row[3] = e.Justification().CURIE()
			switch ev := e.(type) {
			case *mapping.SimpleEvidence:
				row[4] = formatConfidence(ev.Conf)
				if !ev.Author.IsZero() {
					row[5] = ev.Author.CURIE()
				}
				if ev.MappingSet != nil {
					row[6] = ev.MappingSet.Name
					row[7] = ev.MappingSet.Version
					row[8] = ev.MappingSet.License
					row[9] = formatConfidence(ev.MappingSet.Confidence)
				}
			default:
				row[4] = formatConfidence(e.Confidence(ix))
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTabularFile writes the tabular format to a path, compressing
// by extension.
func WriteTabularFile(path string, ix *mapping.Index) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	cw, err := compressWriter(f, path)
	if err != nil {
		return err
	}
	if err := WriteTabular(cw, ix); err != nil {
		cw.Close()
		return err
	}
	return cw.Close()
}

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}
