package catalog

import "strings"

// Model names matching any of these substrings are treated as having no
// built-in content filtering. Name-based matching is fuzzy on purpose: the
// Ollama registry carries no capability flag, so the name is all there is.
var unrestrictedKeywords = []string{
	"uncensored",
	"dolphin",
	"airoboros",
	"openhermes",
	"wizard-vicuna",
	"nous-hermes",
}

// IsUnrestricted reports whether a model name is classified as unfiltered.
// The match is case-insensitive and affects only prompt framing.
func IsUnrestricted(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range unrestrictedKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// Categorize splits model names into standard and unrestricted groups,
// preserving input order.
func Categorize(names []string) (standard, unrestricted []string) {
	for _, name := range names {
		if IsUnrestricted(name) {
			unrestricted = append(unrestricted, name)
		} else {
			standard = append(standard, name)
		}
	}
	return standard, unrestricted
}
