package models

import "strings"

// variantSuffixes in strip order. "-maxthinking" and "-nothinking" must be
// checked before any shorter suffix so a name never loses the wrong tail.
var variantSuffixes = []string{"-maxthinking", "-nothinking", "-search"}

// ShortName strips an optional "models/" prefix.
func ShortName(name string) string {
	return strings.TrimPrefix(name, "models/")
}

// BaseName strips the variant suffix (if any) from a model name, returning
// the underlying base model to send upstream.
func BaseName(name string) string {
	name = ShortName(name)
	for _, suffix := range variantSuffixes {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

// IsSearchVariant reports whether the model requests Google Search grounding.
func IsSearchVariant(name string) bool {
	return strings.Contains(ShortName(name), "-search")
}

// IsNoThinkingVariant reports whether the model disables thinking.
func IsNoThinkingVariant(name string) bool {
	return strings.Contains(ShortName(name), "-nothinking")
}

// IsMaxThinkingVariant reports whether the model requests the maximum
// thinking budget.
func IsMaxThinkingVariant(name string) bool {
	return strings.Contains(ShortName(name), "-maxthinking")
}
