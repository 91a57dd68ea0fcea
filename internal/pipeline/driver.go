package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sma/internal/errors"
	"sma/internal/graph"
	"sma/internal/inference"
	"sma/internal/landscape"
	"sma/internal/logging"
	"sma/internal/mapping"
	"sma/internal/metric"
	"sma/internal/priority"
	"sma/internal/registry"
	"sma/internal/sources"
	"sma/internal/storage"
	"sma/internal/vocab"
)

// Driver executes a configuration: read, pre-filter, infer,
// post-filter, prioritize, and summarize. Every stage is a pure
// function of its input collection plus the configuration, and raw,
// processed, and priority products are materialized so later stages
// can re-run without repeating upstream work.
type Driver struct {
	cfg        *Configuration
	adapters   *sources.Registry
	store      *storage.DB
	normalizer *registry.Registry
	table      *vocab.PredicateTable
	logger     *logging.Logger
	metrics    *metric.Metrics
}

// DriverOption customizes a driver.
type DriverOption func(*Driver)

// WithStore attaches the artifact store.
func WithStore(store *storage.DB) DriverOption {
	return func(d *Driver) { d.store = store }
}

// WithNormalizer attaches a prefix-normalization registry.
func WithNormalizer(n *registry.Registry) DriverOption {
	return func(d *Driver) { d.normalizer = n }
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metric.Metrics) DriverOption {
	return func(d *Driver) { d.metrics = m }
}

// WithAdapters replaces the source adapter registry.
func WithAdapters(r *sources.Registry) DriverOption {
	return func(d *Driver) { d.adapters = r }
}

// NewDriver creates a driver for a validated configuration.
func NewDriver(cfg *Configuration, logger *logging.Logger, opts ...DriverOption) *Driver {
	d := &Driver{
		cfg:      cfg,
		adapters: sources.NewRegistry(logger),
		table:    vocab.NewPredicateTable(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Result collects the materialized products of a run.
type Result struct {
	RunID     string
	Raw       []mapping.Mapping
	Processed []mapping.Mapping
	Priority  []mapping.Mapping
	Inference *inference.Result
	Landscape *landscape.Result
}

// Run executes the full pipeline. Cancellation is honored at stage
// boundaries (and inside inference rounds); artifacts materialized
// before the cancellation point remain valid.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}

	raw, err := d.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	result.Raw = raw
	if err := d.saveStage(storage.StageRaw, result.RunID, raw); err != nil {
		return nil, err
	}
	if path := d.cfg.ResolvePath(d.cfg.RawPath); path != "" {
		if err := sources.WriteTabularFile(path, mapping.NewIndex(raw)); err != nil {
			return nil, err
		}
	}
	if err := d.stageBoundary(ctx, "acquire"); err != nil {
		return nil, err
	}

	processed, infResult, err := d.Process(ctx, raw)
	if err != nil {
		return nil, err
	}
	result.Processed = processed
	result.Inference = infResult
	if err := d.saveStage(storage.StageProcessed, result.RunID, processed); err != nil {
		return nil, err
	}
	if path := d.cfg.ResolvePath(d.cfg.ProcessedPath); path != "" {
		if err := sources.WriteArchiveFile(path, mapping.NewIndex(processed)); err != nil {
			return nil, err
		}
	}
	if err := d.stageBoundary(ctx, "process"); err != nil {
		return nil, err
	}

	prioritized := d.Prioritize(processed)
	result.Priority = prioritized
	if err := d.saveStage(storage.StagePriority, result.RunID, prioritized); err != nil {
		return nil, err
	}
	if path := d.cfg.ResolvePath(d.cfg.PriorityPath); path != "" {
		if err := sources.WriteTabularFile(path, mapping.NewIndex(prioritized)); err != nil {
			return nil, err
		}
	}
	if err := d.stageBoundary(ctx, "prioritize"); err != nil {
		return nil, err
	}

	if len(d.cfg.TermCounts) > 0 {
		result.Landscape = d.Landscape(raw, processed)
	}
	return result, nil
}

// Acquire loads and concatenates every configured input, then applies
// normalization, subset restriction, and the pre-filters.
func (d *Driver) Acquire(ctx context.Context) ([]mapping.Mapping, error) {
	defer d.observeStage("acquire", time.Now())

	var all []mapping.Mapping
	for _, input := range d.cfg.Inputs {
		loaded, err := d.adapters.Load(ctx, input)
		if err != nil {
			if d.metrics != nil {
				d.metrics.SourceFailures.WithLabelValues(string(errors.CodeOf(err))).Inc()
			}
			if errors.CodeOf(err) == errors.SourceUnavailable && d.cfg.SkipUnavailableSources {
				d.logger.Warn("skipping unavailable source", logging.Fields{
					"kind":   input.Kind,
					"prefix": input.Prefix,
					"error":  err.Error(),
				})
				continue
			}
			return nil, err
		}
		if d.metrics != nil {
			d.metrics.MappingsLoaded.WithLabelValues(input.Kind).Add(float64(len(loaded)))
		}
		all = append(all, loaded...)
	}

	all = d.normalizer.NormalizeMappings(all)
	all = d.applySubsets(all)

	before := len(all)
	if len(d.cfg.KeepPrefixes) > 0 || len(d.cfg.RemovePrefixes) > 0 {
		all = mapping.FilterPrefixes(all, mapping.PrefixFilter{
			Keep:   d.cfg.KeepPrefixes,
			Remove: d.cfg.RemovePrefixes,
		})
		d.observeFiltered("prefix", before-len(all))
	}

	negatives, err := d.loadNegatives(ctx)
	if err != nil {
		return nil, err
	}
	if len(negatives) > 0 {
		before = len(all)
		all = mapping.FilterTriples(all, negatives)
		d.observeFiltered("negative", before-len(all))
	}

	all = mapping.FilterSelfMappings(all)
	all = mapping.FilterInternal(all)
	all = mapping.Deduplicate(all)

	d.logger.Info("acquired raw mappings", logging.Fields{
		"inputs":   len(d.cfg.Inputs),
		"mappings": len(all),
	})
	return all, nil
}

// Process runs inference and the post-filters over the raw collection.
func (d *Driver) Process(ctx context.Context, raw []mapping.Mapping) ([]mapping.Mapping, *inference.Result, error) {
	defer d.observeStage("process", time.Now())

	rules, err := d.cfg.MutationRules()
	if err != nil {
		return nil, nil, errors.Wrap(errors.InvalidConfiguration, "mutation rules", err)
	}
	engine := inference.NewEngine(d.table, d.logger, inference.Options{
		MaxRounds: d.cfg.MaxRounds,
		Mutations: rules,
	})
	infResult, err := engine.Run(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	processed := infResult.Mappings
	if d.metrics != nil {
		d.metrics.MappingsInferred.Add(float64(len(processed) - len(raw)))
		d.metrics.InferenceRounds.Observe(float64(infResult.Rounds))
	}

	negatives, err := d.loadNegatives(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(negatives) > 0 {
		before := len(processed)
		removed := make(map[mapping.TripleKey]bool, len(negatives))
		for _, m := range negatives {
			removed[m.Key()] = true
		}
		processed = mapping.SealEvidence(processed, removed)
		processed = mapping.FilterTriples(processed, negatives)
		d.observeFiltered("negative", before-len(processed))
	}

	if d.cfg.RemoveImprecise {
		before := len(processed)
		processed = d.filterImprecise(processed)
		d.observeFiltered("imprecise", before-len(processed))
	}

	if len(d.cfg.PostKeepPrefixes) > 0 || len(d.cfg.PostRemovePrefixes) > 0 {
		before := len(processed)
		processed = mapping.FilterPrefixes(processed, mapping.PrefixFilter{
			Keep:   d.cfg.PostKeepPrefixes,
			Remove: d.cfg.PostRemovePrefixes,
		})
		d.observeFiltered("post_prefix", before-len(processed))
	}

	if d.cfg.MinConfidence > 0 {
		before := len(processed)
		processed = mapping.FilterMinConfidence(processed, d.cfg.MinConfidence)
		d.observeFiltered("min_confidence", before-len(processed))
	}

	processed = mapping.FilterSelfMappings(processed)

	d.logger.Info("processed mappings", logging.Fields{
		"raw":         len(raw),
		"processed":   len(processed),
		"rounds":      infResult.Rounds,
		"fixed_point": infResult.FixedPoint,
	})
	return processed, infResult, nil
}

// Prioritize reduces the processed equivalence graph to the priority
// star graph.
func (d *Driver) Prioritize(processed []mapping.Mapping) []mapping.Mapping {
	defer d.observeStage("prioritize", time.Now())
	g := graph.BuildEquivalence(mapping.NewIndex(processed), nil)
	return priority.New(d.cfg.Priority, d.logger).Prioritize(g)
}

// Landscape analyzes coverage over the priority prefixes.
func (d *Driver) Landscape(raw, processed []mapping.Mapping) *landscape.Result {
	defer d.observeStage("landscape", time.Now())
	analyzer := landscape.New(d.cfg.Priority, landscape.TermCounts(d.cfg.TermCounts), d.logger)
	return analyzer.Analyze(mapping.NewIndex(raw), mapping.NewIndex(processed))
}

func (d *Driver) loadNegatives(ctx context.Context) ([]mapping.Mapping, error) {
	var negatives []mapping.Mapping
	for _, input := range d.cfg.NegativeInputs {
		loaded, err := d.adapters.Load(ctx, input)
		if err != nil {
			if errors.CodeOf(err) == errors.SourceUnavailable && d.cfg.SkipUnavailableSources {
				d.logger.Warn("skipping unavailable negative source", logging.Fields{
					"kind":  input.Kind,
					"error": err.Error(),
				})
				continue
			}
			return nil, err
		}
		negatives = append(negatives, loaded...)
	}
	return d.normalizer.NormalizeMappings(negatives), nil
}

// applySubsets drops mappings touching a subset-restricted prefix
// with an identifier outside the subset.
func (d *Driver) applySubsets(mappings []mapping.Mapping) []mapping.Mapping {
	subsets := d.cfg.SubsetFilter()
	if subsets == nil {
		return mappings
	}
	out := make([]mapping.Mapping, 0, len(mappings))
	for _, m := range mappings {
		if inSubset(subsets, m.Subject) && inSubset(subsets, m.Object) {
			out = append(out, m)
		}
	}
	d.observeFiltered("subset", len(mappings)-len(out))
	return out
}

func inSubset(subsets map[string]map[string]bool, r vocab.Reference) bool {
	members, restricted := subsets[r.Prefix]
	if !restricted {
		return true
	}
	return members[r.Identifier]
}

func (d *Driver) filterImprecise(mappings []mapping.Mapping) []mapping.Mapping {
	removed := make(map[mapping.TripleKey]bool)
	for _, m := range mappings {
		info, _ := d.table.Lookup(m.Predicate)
		if info.Imprecise {
			removed[m.Key()] = true
		}
	}
	mappings = mapping.SealEvidence(mappings, removed)
	out := make([]mapping.Mapping, 0, len(mappings))
	for _, m := range mappings {
		if !removed[m.Key()] {
			out = append(out, m)
		}
	}
	return out
}

func (d *Driver) saveStage(stage, runID string, mappings []mapping.Mapping) error {
	if d.store == nil {
		return nil
	}
	return d.store.SaveArtifact(d.cfg.Key, stage, runID, mappings)
}

func (d *Driver) stageBoundary(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		d.logger.Warn("pipeline canceled", logging.Fields{"after_stage": stage})
		return errors.Wrap(errors.Canceled, "canceled after "+stage, err)
	}
	return nil
}

func (d *Driver) observeStage(stage string, start time.Time) {
	if d.metrics != nil {
		d.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func (d *Driver) observeFiltered(filter string, count int) {
	if d.metrics != nil && count > 0 {
		d.metrics.MappingsFiltered.WithLabelValues(filter).Add(float64(count))
	}
}
