package translator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Session pins the identifiers shared by every chunk of one response.
type Session struct {
	ID      string
	Created int64
	Model   string
}

// NewSession creates the per-response identity used across all chunks.
func NewSession(model string) *Session {
	return &Session{
		ID:      "chatcmpl-" + uuid.NewString(),
		Created: time.Now().Unix(),
		Model:   model,
	}
}

// GeminiToOpenAIResponse converts a full (non-streaming) Gemini response
// body into an OpenAI chat completion.
func GeminiToOpenAIResponse(s *Session, body []byte) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("unparseable upstream body")
	}
	root := gjson.ParseBytes(body)

	var choices []map[string]any
	for idx, candidate := range root.Get("candidates").Array() {
		text, reasoning, toolCalls := collectParts(candidate, 0)

		message := map[string]any{
			"role":    "assistant",
			"content": text,
		}
		if reasoning != "" {
			message["reasoning_content"] = reasoning
		}
		if len(toolCalls) > 0 {
			message["tool_calls"] = toolCalls
		}

		finish := mapFinishReason(candidate.Get("finishReason").String())
		if len(toolCalls) > 0 {
			finish = "tool_calls"
		}
		choices = append(choices, map[string]any{
			"index":         idx,
			"message":       message,
			"finish_reason": finish,
		})
	}

	prompt := root.Get("usageMetadata.promptTokenCount").Int()
	completion := root.Get("usageMetadata.candidatesTokenCount").Int()

	return json.Marshal(map[string]any{
		"id":      s.ID,
		"object":  "chat.completion",
		"created": s.Created,
		"model":   s.Model,
		"choices": choices,
		"usage": map[string]any{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
			"total_tokens":      prompt + completion,
		},
	})
}

// GeminiChunkToOpenAI reframes one unwrapped upstream chunk as an OpenAI
// chat.completion.chunk. first controls the leading role delta. The second
// return is false when the chunk carries nothing to forward.
func GeminiChunkToOpenAI(s *Session, chunk []byte, first bool) ([]byte, bool) {
	root := gjson.ParseBytes(chunk)
	candidate := root.Get("candidates.0")
	if !candidate.Exists() {
		return nil, false
	}

	delta := map[string]any{}
	if first {
		delta["role"] = "assistant"
	}

	text, reasoning, toolCalls := collectParts(candidate, 0)
	if text != "" {
		delta["content"] = text
	}
	if reasoning != "" {
		delta["reasoning_content"] = reasoning
	}
	if len(toolCalls) > 0 {
		delta["tool_calls"] = toolCalls
	}

	var finish any
	if fr := candidate.Get("finishReason"); fr.Exists() {
		finish = mapFinishReason(fr.String())
	}
	if finish == nil && len(delta) == 0 {
		return nil, false
	}

	out, err := json.Marshal(map[string]any{
		"id":      s.ID,
		"object":  "chat.completion.chunk",
		"created": s.Created,
		"model":   s.Model,
		"choices": []map[string]any{{
			"index":         0,
			"delta":         delta,
			"finish_reason": finish,
		}},
	})
	if err != nil {
		return nil, false
	}
	return out, true
}

// collectParts walks a candidate's parts, splitting visible text from
// thought text and gathering function calls. Parts flagged thought:true
// carry reasoning, matching the Code Assist wire shape.
func collectParts(candidate gjson.Result, callIndexBase int) (text, reasoning string, toolCalls []map[string]any) {
	for _, part := range candidate.Get("content.parts").Array() {
		if t := part.Get("text"); t.Exists() {
			if part.Get("thought").Bool() {
				reasoning += t.String()
			} else {
				text += t.String()
			}
		}
		if fn := part.Get("functionCall"); fn.Exists() {
			args := fn.Get("args")
			argsJSON := "{}"
			if args.Exists() {
				argsJSON = args.Raw
			}
			toolCalls = append(toolCalls, map[string]any{
				"index": callIndexBase + len(toolCalls),
				"id":    fmt.Sprintf("call_%s_%d", fn.Get("name").String(), callIndexBase+len(toolCalls)),
				"type":  "function",
				"function": map[string]any{
					"name":      fn.Get("name").String(),
					"arguments": argsJSON,
				},
			})
		}
	}
	return text, reasoning, toolCalls
}

func mapFinishReason(reason string) string {
	switch reason {
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION":
		return "content_filter"
	default:
		return "stop"
	}
}
