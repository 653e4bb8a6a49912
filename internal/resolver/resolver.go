// Package resolver implements the Model Resolver (component A): mapping a
// client-supplied model name to the upstream model name.
package resolver

import "strings"

// Resolve maps an inbound model name to an upstream model name using modelMap
// (already flattened by config.ParseModelMapJSON), falling back to
// defaultModel. Lookup order, per §4.A:
//  1. exact match on the case-folded, trimmed input;
//  2. a unique prefix match among normalized keys;
//  3. defaultModel.
func Resolve(input string, modelMap map[string]string, defaultModel string) string {
	normalized := normalize(input)
	if normalized == "" {
		return defaultModel
	}

	normKeys := make(map[string]string, len(modelMap))
	for k, v := range modelMap {
		normKeys[normalize(k)] = v
	}

	if v, ok := normKeys[normalized]; ok {
		return v
	}

	// Unique prefix match: the normalized input is treated as a short alias
	// that must unambiguously identify one configured (typically longer,
	// dated) key — e.g. input "foo" against keys "foo-a"/"foo-b" is
	// ambiguous and falls through to the default, per §4.A / P7.
	var matchedValue string
	matches := 0
	for k, v := range normKeys {
		if strings.HasPrefix(k, normalized) {
			matches++
			matchedValue = v
		}
	}
	if matches == 1 {
		return matchedValue
	}

	return defaultModel
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
