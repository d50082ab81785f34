package models

import "sort"

// Spec describes one model as exposed by the native Gemini models API.
type Spec struct {
	Name                       string   `json:"name"`
	Version                    string   `json:"version"`
	DisplayName                string   `json:"displayName"`
	Description                string   `json:"description"`
	InputTokenLimit            int      `json:"inputTokenLimit"`
	OutputTokenLimit           int      `json:"outputTokenLimit"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	Temperature                float64  `json:"temperature"`
	MaxTemperature             float64  `json:"maxTemperature"`
	TopP                       float64  `json:"topP"`
	TopK                       int      `json:"topK"`
}

// baseSpec builds a Spec with the limits shared by every catalog entry.
func baseSpec(name, displayName, description string, outputLimit int) Spec {
	return Spec{
		Name:                       "models/" + name,
		Version:                    "001",
		DisplayName:                displayName,
		Description:                description,
		InputTokenLimit:            1048576,
		OutputTokenLimit:           outputLimit,
		SupportedGenerationMethods: []string{"generateContent", "streamGenerateContent"},
		Temperature:                1.0,
		MaxTemperature:             2.0,
		TopP:                       0.95,
		TopK:                       64,
	}
}

// BaseModels are the models verified to exist on the Code Assist endpoint.
var BaseModels = []Spec{
	baseSpec("gemini-2.0-flash", "Gemini 2.0 Flash",
		"Fast multimodal model from Gemini 2.0 generation", 8192),
	baseSpec("gemini-2.5-flash", "Gemini 2.5 Flash",
		"Fast and efficient multimodal model with latest improvements", 65535),
	baseSpec("gemini-2.5-flash-lite", "Gemini 2.5 Flash Lite",
		"Lightweight version of Gemini 2.5 Flash — fast and cost-efficient", 65535),
	baseSpec("gemini-2.5-pro", "Gemini 2.5 Pro",
		"Advanced multimodal model with enhanced capabilities", 65535),
	baseSpec("gemini-3-flash-preview", "Gemini 3.0 Flash Preview",
		"Preview version of Gemini 3.0 Flash — latest generation", 65535),
	baseSpec("gemini-3-pro-preview", "Gemini 3.0 Pro Preview",
		"Preview version of Gemini 3.0 Pro — most capable model", 65535),
}

// Supported is the full catalog (base models plus generated variants),
// sorted by name. byName gives O(1) lookup on the short model name
// (without the "models/" prefix).
var (
	Supported []Spec
	byName    map[string]Spec
)

func init() {
	Supported = buildCatalog()
	byName = make(map[string]Spec, len(Supported))
	for _, m := range Supported {
		byName[ShortName(m.Name)] = m
	}
}

func buildCatalog() []Spec {
	all := make([]Spec, 0, len(BaseModels)*4)
	all = append(all, BaseModels...)

	for _, m := range BaseModels {
		if !supportsGenerate(m) {
			continue
		}
		search := m
		search.Name += "-search"
		search.DisplayName += " with Google Search"
		search.Description += " (includes Google Search grounding)"
		all = append(all, search)
	}

	for _, m := range BaseModels {
		if !supportsGenerate(m) || !SupportsThinking(ShortName(m.Name)) {
			continue
		}
		no := m
		no.Name += "-nothinking"
		no.DisplayName += " (No Thinking)"
		no.Description += " (thinking disabled)"
		all = append(all, no)

		max := m
		max.Name += "-maxthinking"
		max.DisplayName += " (Max Thinking)"
		max.Description += " (maximum thinking budget)"
		all = append(all, max)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

func supportsGenerate(m Spec) bool {
	for _, method := range m.SupportedGenerationMethods {
		if method == "generateContent" {
			return true
		}
	}
	return false
}

// Lookup returns the catalog entry for a model name. The name may carry a
// "models/" prefix; variants are first-class catalog entries.
func Lookup(name string) (Spec, bool) {
	m, ok := byName[ShortName(name)]
	return m, ok
}

// IsSupported reports whether the model name appears in the catalog.
func IsSupported(name string) bool {
	_, ok := Lookup(name)
	return ok
}
