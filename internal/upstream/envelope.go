package upstream

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/MattyMroz/geminicli2api/internal/models"
)

// defaultSafetySettings disables blocking for every harm category. Applied
// only when the caller did not supply its own settings.
const defaultSafetySettings = `[` +
	`{"category":"HARM_CATEGORY_HARASSMENT","threshold":"BLOCK_NONE"},` +
	`{"category":"HARM_CATEGORY_HATE_SPEECH","threshold":"BLOCK_NONE"},` +
	`{"category":"HARM_CATEGORY_SEXUALLY_EXPLICIT","threshold":"BLOCK_NONE"},` +
	`{"category":"HARM_CATEGORY_DANGEROUS_CONTENT","threshold":"BLOCK_NONE"},` +
	`{"category":"HARM_CATEGORY_CIVIC_INTEGRITY","threshold":"BLOCK_NONE"},` +
	`{"category":"HARM_CATEGORY_IMAGE_DANGEROUS_CONTENT","threshold":"BLOCK_NONE"},` +
	`{"category":"HARM_CATEGORY_IMAGE_HARASSMENT","threshold":"BLOCK_NONE"},` +
	`{"category":"HARM_CATEGORY_IMAGE_HATE","threshold":"BLOCK_NONE"},` +
	`{"category":"HARM_CATEGORY_IMAGE_SEXUALLY_EXPLICIT","threshold":"BLOCK_NONE"},` +
	`{"category":"HARM_CATEGORY_UNSPECIFIED","threshold":"BLOCK_NONE"},` +
	`{"category":"HARM_CATEGORY_JAILBREAK","threshold":"BLOCK_NONE"}]`

// Envelope is the payload sent to the Code Assist API, minus the project,
// which is only known once an account has been selected.
type Envelope struct {
	Model   string // resolved base model
	Request []byte // canonical JSON of the request body
}

// BuildFromNative builds an Envelope from a native Gemini request body. The
// variant-suffixed model name selects the policy; the caller's body is never
// mutated, and fields the caller set explicitly are left alone.
func BuildFromNative(model string, body []byte) (*Envelope, error) {
	if len(body) == 0 {
		body = []byte(`{}`)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid request JSON")
	}
	req, err := applyModelPolicy(model, body)
	if err != nil {
		return nil, err
	}
	return &Envelope{Model: models.BaseName(model), Request: req}, nil
}

// BuildFromOpenAI builds an Envelope from a request already translated from
// the OpenAI chat shape into Gemini fields. The policy layering is identical
// to the native path.
func BuildFromOpenAI(model string, translated []byte) (*Envelope, error) {
	return BuildFromNative(model, translated)
}

// applyModelPolicy layers safety defaults, the thinking configuration, and
// search grounding onto a Gemini-shaped request. sjson copies on write, so
// the input slice stays untouched.
func applyModelPolicy(model string, body []byte) ([]byte, error) {
	out := body

	var err error
	if !gjson.GetBytes(out, "safetySettings").Exists() {
		out, err = sjson.SetRawBytes(out, "safetySettings", []byte(defaultSafetySettings))
		if err != nil {
			return nil, fmt.Errorf("apply safety settings: %w", err)
		}
	}

	// Families without thinking support never receive a thinkingConfig
	// block; its presence alone is an upstream error.
	if models.SupportsThinking(model) {
		tc := "generationConfig.thinkingConfig"
		out, err = sjson.SetBytes(out, tc+".includeThoughts", models.IncludeThoughts(model))
		if err != nil {
			return nil, fmt.Errorf("apply thinking config: %w", err)
		}
		if !gjson.GetBytes(body, tc+".thinkingBudget").Exists() {
			out, err = sjson.SetBytes(out, tc+".thinkingBudget", models.ThinkingBudget(model))
			if err != nil {
				return nil, fmt.Errorf("apply thinking budget: %w", err)
			}
		}
	}

	if models.IsSearchVariant(model) && !hasSearchTool(out) {
		out, err = sjson.SetRawBytes(out, "tools.-1", []byte(`{"googleSearch":{}}`))
		if err != nil {
			return nil, fmt.Errorf("append search tool: %w", err)
		}
	}
	return out, nil
}

func hasSearchTool(body []byte) bool {
	found := false
	gjson.GetBytes(body, "tools").ForEach(func(_, tool gjson.Result) bool {
		if tool.Get("googleSearch").Exists() {
			found = true
			return false
		}
		return true
	})
	return found
}
