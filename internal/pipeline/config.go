package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"sma/internal/errors"
	"sma/internal/inference"
	"sma/internal/sources"
	"sma/internal/vocab"
)

// Mutation is one predicate-mutation rule in a configuration. Old and
// new predicates default to dbXref and exactMatch, their dominant use.
// When Mutual lists prefixes, the rule expands to every ordered pair
// over them instead of using Source/Target.
type Mutation struct {
	Source     string   `mapstructure:"source" yaml:"source,omitempty"`
	Target     string   `mapstructure:"target" yaml:"target,omitempty"`
	Old        string   `mapstructure:"old" yaml:"old,omitempty"`
	New        string   `mapstructure:"new" yaml:"new,omitempty"`
	Confidence float64  `mapstructure:"confidence" yaml:"confidence" validate:"gte=0,lte=1"`
	Mutual     []string `mapstructure:"mutual" yaml:"mutual,omitempty"`
}

// Configuration declares a full assembly: inputs, processing rules,
// and output artifacts.
type Configuration struct {
	Name        string   `mapstructure:"name" yaml:"name" validate:"required"`
	Key         string   `mapstructure:"key" yaml:"key" validate:"required"`
	Description string   `mapstructure:"description" yaml:"description,omitempty"`
	Creators    []string `mapstructure:"creators" yaml:"creators,omitempty"`

	Inputs         []sources.Descriptor `mapstructure:"inputs" yaml:"inputs" validate:"required,min=1,dive"`
	NegativeInputs []sources.Descriptor `mapstructure:"negative_inputs" yaml:"negative_inputs,omitempty" validate:"dive"`

	Priority  []string   `mapstructure:"priority" yaml:"priority" validate:"required,min=1"`
	Mutations []Mutation `mapstructure:"mutations" yaml:"mutations,omitempty" validate:"dive"`

	// Subsets restricts each prefix to the listed member references.
	// Members are expected pre-expanded by the term provider that
	// owns the hierarchy.
	Subsets map[string][]string `mapstructure:"subsets" yaml:"subsets,omitempty"`

	KeepPrefixes       []string `mapstructure:"keep_prefixes" yaml:"keep_prefixes,omitempty"`
	RemovePrefixes     []string `mapstructure:"remove_prefixes" yaml:"remove_prefixes,omitempty"`
	PostKeepPrefixes   []string `mapstructure:"post_keep_prefixes" yaml:"post_keep_prefixes,omitempty"`
	PostRemovePrefixes []string `mapstructure:"post_remove_prefixes" yaml:"post_remove_prefixes,omitempty"`

	// RemoveImprecise drops imprecise predicates (dbXref, closeMatch)
	// after inference.
	RemoveImprecise bool    `mapstructure:"remove_imprecise" yaml:"remove_imprecise,omitempty"`
	MinConfidence   float64 `mapstructure:"min_confidence" yaml:"min_confidence,omitempty" validate:"gte=0,lte=1"`
	// MaxRounds overrides the inference iteration budget.
	MaxRounds int `mapstructure:"max_rounds" yaml:"max_rounds,omitempty" validate:"gte=0"`
	// SkipUnavailableSources continues past SOURCE_UNAVAILABLE
	// failures instead of aborting.
	SkipUnavailableSources bool `mapstructure:"skip_unavailable_sources" yaml:"skip_unavailable_sources,omitempty"`

	// TermCounts feeds the landscape analyzer's diagonal; prefixes
	// without counts are analyzed with zero terms.
	TermCounts map[string]int `mapstructure:"term_counts" yaml:"term_counts,omitempty"`

	// DataRoot anchors relative artifact paths. Defaults to ".".
	DataRoot string `mapstructure:"data_root" yaml:"data_root,omitempty"`
	// Artifact paths, resolved against DataRoot unless absolute.
	// Empty paths skip the corresponding file artifact; the artifact
	// store still materializes every stage.
	RawPath       string `mapstructure:"raw_path" yaml:"raw_path,omitempty"`
	ProcessedPath string `mapstructure:"processed_path" yaml:"processed_path,omitempty"`
	PriorityPath  string `mapstructure:"priority_path" yaml:"priority_path,omitempty"`
}

// LoadConfiguration reads a configuration document (YAML or JSON) and
// validates it.
func LoadConfiguration(path string, table *vocab.PredicateTable) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(errors.InvalidConfiguration, "read configuration "+path, err)
	}
	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.InvalidConfiguration, "parse configuration "+path, err)
	}
	if err := cfg.Validate(table); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration before any stage runs.
func (c *Configuration) Validate(table *vocab.PredicateTable) error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.InvalidConfiguration, "configuration", err)
	}

	// Every priority prefix must be reachable from some input. The
	// check only applies when all inputs declare their prefix; a
	// multi-vocabulary source (e.g. an archive) makes coverage
	// unknowable up front.
	declared := make(map[string]bool)
	allDeclared := true
	for _, input := range c.Inputs {
		if input.Prefix == "" {
			allDeclared = false
			break
		}
		declared[input.Prefix] = true
	}
	if allDeclared {
		for _, prefix := range c.Priority {
			if !declared[prefix] {
				return errors.Newf(errors.InvalidConfiguration, "priority prefix %q not covered by any input", prefix)
			}
		}
	}

	for i, mutation := range c.Mutations {
		if len(mutation.Mutual) == 0 && mutation.Source == "" {
			return errors.Newf(errors.InvalidConfiguration, "mutation %d needs a source prefix or a mutual set", i)
		}
		for _, raw := range []string{mutation.Old, mutation.New} {
			if raw == "" {
				continue
			}
			predicate, err := vocab.ParseCURIE(raw)
			if err != nil {
				return errors.Wrap(errors.InvalidConfiguration, "mutation predicate", err)
			}
			if !table.Known(predicate) {
				return errors.Newf(errors.InvalidConfiguration, "mutation predicate %q is not registered", raw)
			}
		}
	}

	for prefix, members := range c.Subsets {
		for _, raw := range members {
			ref, err := vocab.ParseCURIE(raw)
			if err != nil {
				return errors.Wrap(errors.InvalidConfiguration, "subset member for "+prefix, err)
			}
			if ref.Prefix != prefix {
				return errors.Newf(errors.InvalidConfiguration, "subset member %q does not belong to prefix %q", raw, prefix)
			}
		}
	}
	return nil
}

// MutationRules expands the configured mutations into engine rules.
func (c *Configuration) MutationRules() ([]inference.MutationRule, error) {
	var rules []inference.MutationRule
	for _, m := range c.Mutations {
		old := vocab.DbXref
		if m.Old != "" {
			parsed, err := vocab.ParseCURIE(m.Old)
			if err != nil {
				return nil, err
			}
			old = parsed
		}
		updated := vocab.ExactMatch
		if m.New != "" {
			parsed, err := vocab.ParseCURIE(m.New)
			if err != nil {
				return nil, err
			}
			updated = parsed
		}
		confidence := m.Confidence
		if confidence == 0 {
			confidence = 0.7
		}
		if len(m.Mutual) > 0 {
			for _, rule := range inference.MutualDbXrefRules(m.Mutual, confidence) {
				rule.OldPredicate = old
				rule.NewPredicate = updated
				rules = append(rules, rule)
			}
			continue
		}
		rules = append(rules, inference.MutationRule{
			SourcePrefix: m.Source,
			TargetPrefix: m.Target,
			OldPredicate: old,
			NewPredicate: updated,
			Confidence:   confidence,
		})
	}
	return rules, nil
}

// ResolvePath anchors a relative artifact path at the data root.
// Absolute paths are hints from foreign environments and pass
// through unchanged.
func (c *Configuration) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	root := c.DataRoot
	if root == "" {
		root = "."
	}
	return filepath.Join(root, path)
}

// WriteResolved writes the configuration as YAML, recording exactly
// what a run executed.
func (c *Configuration) WriteResolved(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// SubsetFilter converts the configured subsets into per-prefix member
// sets keyed by identifier.
func (c *Configuration) SubsetFilter() map[string]map[string]bool {
	if len(c.Subsets) == 0 {
		return nil
	}
	out := make(map[string]map[string]bool, len(c.Subsets))
	for prefix, members := range c.Subsets {
		set := make(map[string]bool, len(members))
		for _, raw := range members {
			if _, identifier, ok := strings.Cut(raw, ":"); ok {
				set[identifier] = true
			}
		}
		out[prefix] = set
	}
	return out
}
