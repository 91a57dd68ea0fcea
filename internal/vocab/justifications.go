package vocab

// Match-type vocabulary used as evidence justifications, following the
// semantic mapping vocabulary (semapv).
var (
	// ManualMapping marks a manually curated mapping
	ManualMapping = Reference{Prefix: "semapv", Identifier: "ManualMappingCuration", Name: "manual mapping curation"}
	// LexicalMapping marks a mapping produced by lexical matching
	LexicalMapping = Reference{Prefix: "semapv", Identifier: "LexicalMatching", Name: "lexical matching process"}
	// UnspecifiedMapping marks a mapping with no recorded match process
	UnspecifiedMapping = Reference{Prefix: "semapv", Identifier: "UnspecifiedMatching", Name: "unspecified matching process"}

	// InversionMapping justifies a mapping derived by inverting another
	InversionMapping = Reference{Prefix: "semapv", Identifier: "MappingInversion", Name: "mapping inversion"}
	// ChainMapping justifies a mapping derived by transitive chaining
	ChainMapping = Reference{Prefix: "semapv", Identifier: "MappingChaining", Name: "mapping chaining"}
	// GeneralizationMapping justifies a mapping derived by predicate relaxation
	GeneralizationMapping = Reference{Prefix: "semapv", Identifier: "MappingGeneralization", Name: "mapping generalization"}
	// KnowledgeMapping justifies a mapping derived by predicate mutation
	// from background knowledge about a resource's cross-reference
	// conventions
	KnowledgeMapping = Reference{Prefix: "semapv", Identifier: "BackgroundKnowledgeBasedMatching", Name: "background knowledge-based matching process"}
)
