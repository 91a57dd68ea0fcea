package inference

import (
	"sma/internal/vocab"
)

// MutationRule promotes mappings between two prefixes from one
// predicate to another with a caller-supplied confidence. The typical
// use is upgrading dbxrefs to exact matches for resources known to use
// cross-references to encode equivalence.
type MutationRule struct {
	// SourcePrefix must equal the mapping's subject prefix.
	SourcePrefix string
	// TargetPrefix must equal the mapping's object prefix; empty
	// matches any.
	TargetPrefix string
	// OldPredicate is the predicate the rule fires on.
	OldPredicate vocab.Reference
	// NewPredicate is the predicate of the derived mapping.
	NewPredicate vocab.Reference
	// Confidence is the rule-specific factor applied on top of the
	// parent's aggregate confidence.
	Confidence float64
}

// Matches reports whether the rule applies to a mapping with the
// given subject prefix, object prefix, and predicate.
func (r MutationRule) Matches(subjectPrefix, objectPrefix string, predicate vocab.Reference) bool {
	if r.SourcePrefix != subjectPrefix {
		return false
	}
	if r.TargetPrefix != "" && r.TargetPrefix != objectPrefix {
		return false
	}
	return r.OldPredicate.Key().Equal(predicate.Key())
}

// MutualDbXrefRules expands a prefix set into dbXref-to-exactMatch
// rules for every ordered pair of distinct prefixes, all with the same
// confidence.
func MutualDbXrefRules(prefixes []string, confidence float64) []MutationRule {
	rules := make([]MutationRule, 0, len(prefixes)*(len(prefixes)-1))
	for _, source := range prefixes {
		for _, target := range prefixes {
			if source == target {
				continue
			}
			rules = append(rules, MutationRule{
				SourcePrefix: source,
				TargetPrefix: target,
				OldPredicate: vocab.DbXref,
				NewPredicate: vocab.ExactMatch,
				Confidence:   confidence,
			})
		}
	}
	return rules
}
