package models

import "strings"

// ThinkingPolicy holds the per-family thinking budgets. Families are matched
// by substring on the base model name, most specific first.
type ThinkingPolicy struct {
	Family      string
	NoThinking  int
	MaxThinking int
}

// DefaultThinkingPolicies covers every family with thinking support.
// Budgets come from the Code Assist model limits.
var DefaultThinkingPolicies = []ThinkingPolicy{
	{Family: "gemini-2.5-flash-lite"}, // listed for exclusion; matched before gemini-2.5-flash
	{Family: "gemini-2.5-flash", NoThinking: 0, MaxThinking: 24576},
	{Family: "gemini-2.5-pro", NoThinking: 128, MaxThinking: 32768},
	{Family: "gemini-3-flash", NoThinking: 0, MaxThinking: 24576},
	{Family: "gemini-3-pro", NoThinking: 128, MaxThinking: 45000},
}

// SupportsThinking reports whether the model family accepts a thinkingConfig.
// Gemini 2.0 models and the 2.5 Flash Lite family do not.
func SupportsThinking(name string) bool {
	base := BaseName(name)
	if strings.Contains(base, "gemini-2.0-") || strings.Contains(base, "gemini-2.5-flash-lite") {
		return false
	}
	for _, p := range DefaultThinkingPolicies {
		if p.MaxThinking > 0 && strings.Contains(base, p.Family) {
			return true
		}
	}
	return false
}

// ThinkingBudget resolves the budget for a model name: the family's
// no-thinking or max-thinking value for those variants, -1 (dynamic)
// otherwise.
func ThinkingBudget(name string) int {
	if !IsNoThinkingVariant(name) && !IsMaxThinkingVariant(name) {
		return -1
	}
	base := BaseName(name)
	for _, p := range DefaultThinkingPolicies {
		if !strings.Contains(base, p.Family) {
			continue
		}
		if p.MaxThinking == 0 {
			return -1 // family without thinking support
		}
		if IsNoThinkingVariant(name) {
			return p.NoThinking
		}
		return p.MaxThinking
	}
	return -1
}

// IncludeThoughts reports whether thought parts should be requested. For
// -nothinking variants only the pro and 3-flash families keep thoughts on
// (their floor budget still produces them); everything else includes them.
func IncludeThoughts(name string) bool {
	if !IsNoThinkingVariant(name) {
		return true
	}
	base := BaseName(name)
	return strings.Contains(base, "gemini-2.5-pro") ||
		strings.Contains(base, "gemini-3-pro") ||
		strings.Contains(base, "gemini-3-flash")
}
