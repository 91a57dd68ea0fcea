package sources

import (
	"context"
	"os"

	"sma/internal/errors"
	"sma/internal/logging"
	"sma/internal/mapping"
)

// Descriptor identifies one configured input source.
type Descriptor struct {
	// Kind selects the adapter: "tabular", "archive", or any kind a
	// caller registered.
	Kind string `mapstructure:"kind" json:"kind" validate:"required"`
	// Prefix is the primary vocabulary the source covers, when it has
	// one.
	Prefix string `mapstructure:"prefix" json:"prefix,omitempty"`
	// Confidence is the set-level confidence of the fallback mapping
	// set the tabular adapter attaches to rows that name no mapping
	// set. Rows naming a set keep that set's confidence; the archive
	// adapter does not read it.
	Confidence float64 `mapstructure:"confidence" json:"confidence" validate:"gte=0,lte=1"`
	// Extras carries adapter-specific settings, e.g. the file path.
	Extras map[string]string `mapstructure:"extras" json:"extras,omitempty"`
}

// Adapter turns a source descriptor into a finite mapping collection.
// Every mapping carries at least one simple evidence with a mapping
// set identifier. Transient failures surface as SOURCE_UNAVAILABLE,
// ill-formed data as SOURCE_MALFORMED.
type Adapter interface {
	Load(ctx context.Context, desc Descriptor) ([]mapping.Mapping, error)
}

// Registry dispatches descriptors to adapters by kind.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates a registry with the built-in file-backed
// adapters registered.
func NewRegistry(logger *logging.Logger) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	r.Register("tabular", &TabularAdapter{Logger: logger})
	r.Register("archive", &ArchiveAdapter{})
	return r
}

// Register adds an adapter for a source kind.
func (r *Registry) Register(kind string, adapter Adapter) {
	r.adapters[kind] = adapter
}

// Load resolves and invokes the adapter for a descriptor.
func (r *Registry) Load(ctx context.Context, desc Descriptor) ([]mapping.Mapping, error) {
	adapter, ok := r.adapters[desc.Kind]
	if !ok {
		return nil, errors.Newf(errors.InvalidConfiguration, "no adapter for source kind %q", desc.Kind)
	}
	return adapter.Load(ctx, desc)
}

// Kinds reports the registered source kinds.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	return kinds
}

// openSource opens a descriptor's file, mapping a missing file to
// SOURCE_UNAVAILABLE so the driver can skip it when configured to.
func openSource(desc Descriptor) (*os.File, string, error) {
	path := desc.Extras["path"]
	if path == "" {
		return nil, "", errors.Newf(errors.InvalidConfiguration, "source %q missing extras.path", desc.Kind)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", errors.Wrap(errors.SourceUnavailable, "open "+path, err)
	}
	return f, path, nil
}
