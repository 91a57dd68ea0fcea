package inference

import (
	"context"

	"sma/internal/errors"
	"sma/internal/logging"
	"sma/internal/mapping"
	"sma/internal/vocab"
)

const (
	// DefaultMaxRounds bounds fixed-point iteration on dense graphs.
	DefaultMaxRounds = 5
	// DefaultMaxComponentSize excludes very large connected components
	// from chaining. Components much larger than the number of input
	// vocabularies are usually artifacts of promiscuous dbxref hubs
	// and chaining them blows up quadratically.
	DefaultMaxComponentSize = 100
	// cancelCheckInterval is the mapping count between cancellation
	// checks inside a round.
	cancelCheckInterval = 10_000
)

// Options configures an inference run.
type Options struct {
	// MaxRounds caps the number of rule rounds; 0 means
	// DefaultMaxRounds.
	MaxRounds int
	// MaxComponentSize caps the size of components considered for
	// chaining; 0 means DefaultMaxComponentSize.
	MaxComponentSize int
	// Mutations are the R4 rules applied each round.
	Mutations []MutationRule
	// DisableChaining turns off transitive chaining, leaving
	// inversion, mutation, and generalization.
	DisableChaining bool
}

// Result is the outcome of an inference run.
type Result struct {
	// Mappings is the deduplicated closure (input plus derived).
	Mappings []mapping.Mapping
	// Rounds is the number of rounds executed.
	Rounds int
	// FixedPoint reports whether the last round produced nothing new.
	FixedPoint bool
	// LastRoundNew counts triples produced in the final round; nonzero
	// when the budget ran out first.
	LastRoundNew int
}

// Engine derives entailed mappings by applying inversion, predicate
// mutation, generalization, and transitive chaining until a fixed
// point or the round budget. Predicate semantics come from the table;
// rules never hardcode them.
type Engine struct {
	table  *vocab.PredicateTable
	logger *logging.Logger
	opts   Options
}

// NewEngine creates an engine over the given predicate table.
func NewEngine(table *vocab.PredicateTable, logger *logging.Logger, opts Options) *Engine {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.MaxComponentSize <= 0 {
		opts.MaxComponentSize = DefaultMaxComponentSize
	}
	return &Engine{table: table, logger: logger, opts: opts}
}

// Run executes inference rounds over the collection. Each round sees a
// consistent snapshot: derived mappings are merged (and deduplicated)
// only at round boundaries. Cancellation is checked every 10,000
// mappings; on cancellation the input collection is left untouched and
// a CANCELED error is returned.
func (e *Engine) Run(ctx context.Context, mappings []mapping.Mapping) (*Result, error) {
	current := mapping.Deduplicate(mappings)
	result := &Result{Rounds: 0}

	for round := 1; round <= e.opts.MaxRounds; round++ {
		ix := mapping.NewIndex(current)
		var derived []mapping.Mapping

		for _, step := range []func(context.Context, *mapping.Index) ([]mapping.Mapping, error){
			e.invert,
			e.mutate,
			e.generalize,
			e.chain,
		} {
			out, err := step(ctx, ix)
			if err != nil {
				return nil, err
			}
			derived = append(derived, out...)
		}

		// Merge at the round boundary. Every rule skips triples already
		// present, so the size delta counts genuinely new triples.
		merged := mapping.Deduplicate(append(current, derived...))
		newCount := len(merged) - len(current)
		current = merged
		result.Rounds = round
		result.LastRoundNew = newCount

		if e.logger != nil {
			e.logger.Debug("inference round complete", logging.Fields{
				"round": round,
				"new":   newCount,
				"total": len(current),
			})
		}
		if newCount == 0 {
			result.FixedPoint = true
			break
		}
	}

	if !result.FixedPoint && e.logger != nil {
		e.logger.Warn("inference budget exhausted before fixed point", logging.Fields{
			"code":           string(errors.CycleBudgetExhausted),
			"rounds":         result.Rounds,
			"last_round_new": result.LastRoundNew,
		})
	}
	result.Mappings = current
	return result, nil
}

// checkCancel returns a CANCELED error when the context is done.
func checkCancel(ctx context.Context, processed int) error {
	if processed%cancelCheckInterval != 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.Canceled, "inference canceled", err)
	}
	return nil
}

// invert applies R1: for every mapping whose predicate is symmetric or
// has a defined inverse, derive the flipped triple unless it already
// exists.
func (e *Engine) invert(ctx context.Context, ix *mapping.Index) ([]mapping.Mapping, error) {
	var out []mapping.Mapping
	for i, m := range ix.Mappings() {
		if err := checkCancel(ctx, i); err != nil {
			return nil, err
		}
		info := e.lookup(m.Predicate)
		if !info.Invertible() {
			continue
		}
		key := m.Key()
		flipped := key.Inverted(info.Inverse)
		if ix.Has(flipped) {
			continue
		}
		derived, err := mapping.New(m.Object, info.Inverse, m.Subject, &mapping.ReasonedEvidence{
			Just:    vocab.InversionMapping,
			Factor:  1,
			Parents: []mapping.TripleKey{key},
		})
		if err != nil {
			continue
		}
		out = append(out, derived)
	}
	return out, nil
}

// mutate applies R4 over the configured mutation rules.
func (e *Engine) mutate(ctx context.Context, ix *mapping.Index) ([]mapping.Mapping, error) {
	if len(e.opts.Mutations) == 0 {
		return nil, nil
	}
	var out []mapping.Mapping
	for i, m := range ix.Mappings() {
		if err := checkCancel(ctx, i); err != nil {
			return nil, err
		}
		for _, rule := range e.opts.Mutations {
			if !rule.Matches(m.Subject.Prefix, m.Object.Prefix, m.Predicate) {
				continue
			}
			key := m.Key()
			mutatedKey := mapping.TripleKey{Subject: key.Subject, Predicate: rule.NewPredicate.Key(), Object: key.Object}
			if ix.Has(mutatedKey) {
				continue
			}
			derived, err := mapping.New(m.Subject, rule.NewPredicate, m.Object, &mapping.ReasonedEvidence{
				Just:    vocab.KnowledgeMapping,
				Factor:  rule.Confidence,
				Parents: []mapping.TripleKey{key},
			})
			if err != nil {
				continue
			}
			out = append(out, derived)
		}
	}
	return out, nil
}

// generalize applies R3: every mapping whose predicate declares a
// generalization also holds under the weaker predicate.
func (e *Engine) generalize(ctx context.Context, ix *mapping.Index) ([]mapping.Mapping, error) {
	var out []mapping.Mapping
	for i, m := range ix.Mappings() {
		if err := checkCancel(ctx, i); err != nil {
			return nil, err
		}
		info := e.lookup(m.Predicate)
		if info.GeneralizesTo.IsZero() {
			continue
		}
		key := m.Key()
		generalKey := mapping.TripleKey{Subject: key.Subject, Predicate: info.GeneralizesTo.Key(), Object: key.Object}
		if ix.Has(generalKey) {
			continue
		}
		derived, err := mapping.New(m.Subject, info.GeneralizesTo, m.Object, &mapping.ReasonedEvidence{
			Just:    vocab.GeneralizationMapping,
			Factor:  1,
			Parents: []mapping.TripleKey{key},
		})
		if err != nil {
			continue
		}
		out = append(out, derived)
	}
	return out, nil
}

// chain applies R2: two-step chains over transitive (or condensable)
// predicates. Longer chains emerge from iterating rounds. Chains that
// close a loop, revisit a prefix, or fall in an oversized component
// are skipped.
func (e *Engine) chain(ctx context.Context, ix *mapping.Index) ([]mapping.Mapping, error) {
	if e.opts.DisableChaining {
		return nil, nil
	}

	candidates := e.chainCandidates(ix)
	componentSize := e.componentSizes(candidates)

	var out []mapping.Mapping
	processed := 0
	for _, first := range candidates {
		if err := checkCancel(ctx, processed); err != nil {
			return nil, err
		}
		processed++
		if componentSize[first.Subject.Key()] > e.opts.MaxComponentSize {
			continue
		}
		for _, second := range ix.BySubject(first.Object) {
			if !e.chainable(second.Predicate) {
				continue
			}
			a, c := first.Subject, second.Object
			if a.Equal(c) {
				continue
			}
			predicate, ok := e.table.CondenseChain([]vocab.Reference{first.Predicate, second.Predicate})
			if !ok {
				continue
			}
			// For match predicates, two terms of the same vocabulary
			// linked through a chain usually indicate a hub artifact,
			// not a real equivalence. Deprecation chains (replacedBy)
			// legitimately stay within one vocabulary.
			if info := e.lookup(predicate); info.Invertible() {
				if a.Prefix == c.Prefix || a.Prefix == first.Object.Prefix || first.Object.Prefix == c.Prefix {
					continue
				}
			}
			chainedKey := mapping.TripleKey{Subject: a.Key(), Predicate: predicate.Key(), Object: c.Key()}
			if ix.Has(chainedKey) {
				continue
			}
			derived, err := mapping.New(a, predicate, c, &mapping.ReasonedEvidence{
				Just:    vocab.ChainMapping,
				Factor:  1,
				Parents: []mapping.TripleKey{first.Key(), second.Key()},
			})
			if err != nil {
				continue
			}
			out = append(out, derived)
		}
	}
	return out, nil
}

// chainCandidates returns the mappings that can start a chain, in
// stable index order.
func (e *Engine) chainCandidates(ix *mapping.Index) []mapping.Mapping {
	var out []mapping.Mapping
	for _, m := range ix.Mappings() {
		if e.chainable(m.Predicate) {
			out = append(out, m)
		}
	}
	return out
}

// chainable reports whether a predicate can participate in a chain:
// transitive itself, or condensable alongside exact matches.
func (e *Engine) chainable(p vocab.Reference) bool {
	info := e.lookup(p)
	if info.Transitive {
		return true
	}
	key := p.Key()
	return key.Equal(vocab.BroadMatch) || key.Equal(vocab.NarrowMatch)
}

// componentSizes computes, per reference, the size of its connected
// component over the chainable subgraph.
func (e *Engine) componentSizes(candidates []mapping.Mapping) map[vocab.Reference]int {
	parent := make(map[vocab.Reference]vocab.Reference)
	var find func(vocab.Reference) vocab.Reference
	find = func(r vocab.Reference) vocab.Reference {
		p, ok := parent[r]
		if !ok {
			parent[r] = r
			return r
		}
		if p == r {
			return r
		}
		root := find(p)
		parent[r] = root
		return root
	}
	for _, m := range candidates {
		a, b := find(m.Subject.Key()), find(m.Object.Key())
		if a != b {
			parent[a] = b
		}
	}
	sizes := make(map[vocab.Reference]int)
	for r := range parent {
		sizes[find(r)]++
	}
	out := make(map[vocab.Reference]int, len(parent))
	for r := range parent {
		out[r] = sizes[find(r)]
	}
	return out
}

// lookup fetches predicate metadata, logging unknown predicates once.
func (e *Engine) lookup(p vocab.Reference) vocab.PredicateInfo {
	info, ok := e.table.Lookup(p)
	if !ok && e.table.FirstSighting(p) && e.logger != nil {
		e.logger.Warn("unknown predicate treated as opaque", logging.Fields{
			"code":      string(errors.UnknownPredicate),
			"predicate": p.CURIE(),
		})
	}
	return info
}
