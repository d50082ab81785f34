// Package translator converts between the OpenAI chat wire format and the
// Gemini request/response shapes, and bridges the upstream SSE stream into
// both outbound formats.
package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// OpenAIToGeminiRequest converts an OpenAI chat completions body into a
// Gemini-shaped request. It returns the requested model name (possibly
// variant-suffixed) and whether streaming was asked for.
func OpenAIToGeminiRequest(rawJSON []byte) (model string, stream bool, out []byte, err error) {
	if !gjson.ValidBytes(rawJSON) {
		return "", false, nil, fmt.Errorf("invalid request JSON")
	}
	root := gjson.ParseBytes(rawJSON)
	model = root.Get("model").String()
	if model == "" {
		return "", false, nil, fmt.Errorf("missing model")
	}
	stream = root.Get("stream").Bool()

	contents, system := translateMessages(root.Get("messages"))
	if len(contents) == 0 {
		return "", false, nil, fmt.Errorf("no translatable messages")
	}

	body := []byte(`{}`)
	contentsJSON, _ := json.Marshal(contents)
	body, _ = sjson.SetRawBytes(body, "contents", contentsJSON)
	if len(system) > 0 {
		sysJSON, _ := json.Marshal(map[string]any{"parts": system})
		body, _ = sjson.SetRawBytes(body, "systemInstruction", sysJSON)
	}

	if gc := buildGenerationConfig(root); len(gc) > 0 {
		gcJSON, _ := json.Marshal(gc)
		body, _ = sjson.SetRawBytes(body, "generationConfig", gcJSON)
	}
	return model, stream, body, nil
}

// buildGenerationConfig maps OpenAI sampling knobs onto Gemini's
// generationConfig fields. Absent knobs stay absent.
func buildGenerationConfig(root gjson.Result) map[string]any {
	gc := map[string]any{}
	if v := root.Get("temperature"); v.Exists() {
		gc["temperature"] = v.Float()
	}
	if v := root.Get("top_p"); v.Exists() {
		gc["topP"] = v.Float()
	}
	if v := root.Get("top_k"); v.Exists() {
		gc["topK"] = v.Int()
	}
	if v := root.Get("max_tokens"); v.Exists() {
		gc["maxOutputTokens"] = v.Int()
	}
	if v := root.Get("n"); v.Exists() {
		gc["candidateCount"] = v.Int()
	}
	if v := root.Get("seed"); v.Exists() {
		gc["seed"] = v.Int()
	}
	if v := root.Get("presence_penalty"); v.Exists() {
		gc["presencePenalty"] = v.Float()
	}
	if v := root.Get("frequency_penalty"); v.Exists() {
		gc["frequencyPenalty"] = v.Float()
	}
	if v := root.Get("stop"); v.Exists() {
		if v.IsArray() {
			var stops []string
			for _, s := range v.Array() {
				stops = append(stops, s.String())
			}
			gc["stopSequences"] = stops
		} else {
			gc["stopSequences"] = []string{v.String()}
		}
	}
	if root.Get("response_format.type").String() == "json_object" {
		gc["responseMimeType"] = "application/json"
	}
	return gc
}

// translateMessages converts the OpenAI message list into Gemini contents
// plus separated system-instruction parts. System messages never become
// contents; tool results come back as user-role functionResponse parts.
func translateMessages(messages gjson.Result) (contents []any, system []any) {
	for _, msg := range messages.Array() {
		role := msg.Get("role").String()
		content := msg.Get("content")

		switch role {
		case "system":
			system = append(system, contentToParts(content)...)

		case "user":
			contents = append(contents, map[string]any{
				"role":  "user",
				"parts": contentToParts(content),
			})

		case "assistant":
			parts := []any{}
			if content.Exists() && content.String() != "" {
				parts = append(parts, contentToParts(content)...)
			}
			for _, tc := range msg.Get("tool_calls").Array() {
				if tc.Get("type").String() != "function" {
					continue
				}
				var args any
				if err := json.Unmarshal([]byte(tc.Get("function.arguments").String()), &args); err != nil {
					args = map[string]any{}
				}
				parts = append(parts, map[string]any{
					"functionCall": map[string]any{
						"name": tc.Get("function.name").String(),
						"args": args,
					},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, map[string]any{"role": "model", "parts": parts})
			}

		case "tool":
			var response any
			if err := json.Unmarshal([]byte(content.String()), &response); err != nil {
				response = map[string]any{"result": content.String()}
			}
			contents = append(contents, map[string]any{
				"role": "user",
				"parts": []any{map[string]any{
					"functionResponse": map[string]any{
						"name":     msg.Get("name").String(),
						"response": response,
					},
				}},
			})
		}
	}
	return contents, system
}

// contentToParts handles both the plain-string and the multi-part array
// forms of an OpenAI content field.
func contentToParts(content gjson.Result) []any {
	if !content.IsArray() {
		return []any{map[string]any{"text": content.String()}}
	}
	var parts []any
	for _, part := range content.Array() {
		parts = append(parts, convertContentPart(part))
	}
	return parts
}

func convertContentPart(part gjson.Result) any {
	switch part.Get("type").String() {
	case "text":
		return map[string]any{"text": part.Get("text").String()}

	case "image_url":
		url := part.Get("image_url.url").String()
		if strings.HasPrefix(url, "data:") {
			if meta, data, ok := strings.Cut(url, ","); ok {
				return map[string]any{"inlineData": map[string]any{
					"mimeType": dataURLMIME(meta),
					"data":     data,
				}}
			}
		}
		return map[string]any{"fileData": map[string]any{"fileUri": url}}

	case "input_audio":
		return map[string]any{"inlineData": map[string]any{
			"mimeType": "audio/" + part.Get("input_audio.format").String(),
			"data":     part.Get("input_audio.data").String(),
		}}
	}

	var raw any
	if err := json.Unmarshal([]byte(part.Raw), &raw); err == nil {
		return raw
	}
	return map[string]any{"text": part.Raw}
}

// dataURLMIME pulls the media type out of a data: URL prefix.
func dataURLMIME(meta string) string {
	meta = strings.TrimPrefix(meta, "data:")
	if i := strings.IndexByte(meta, ';'); i >= 0 {
		meta = meta[:i]
	}
	if meta == "" {
		return "image/jpeg"
	}
	return meta
}
