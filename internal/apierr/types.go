// Package apierr holds the wire shapes for errors returned to clients, in
// both the OpenAI and the native Gemini envelope.
package apierr

import "encoding/json"

// OpenAIError mirrors OpenAI's error envelope. Code carries the HTTP status
// the way the compatibility layer has always reported it.
type OpenAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code,omitempty"`
	} `json:"error"`
}

// GeminiError mirrors the native Gemini error structure.
type GeminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// OpenAIType maps an HTTP status to the OpenAI error type string. Client
// mistakes (bad request bodies, unknown models) report invalid_request_error;
// everything else is the server's problem.
func OpenAIType(status int) string {
	switch status {
	case 400, 404:
		return "invalid_request_error"
	}
	return "api_error"
}

// NewOpenAI builds an OpenAI-shaped error for a status and message.
func NewOpenAI(status int, message string) OpenAIError {
	var e OpenAIError
	e.Error.Message = message
	e.Error.Type = OpenAIType(status)
	e.Error.Code = status
	return e
}

// NewGemini builds a Gemini-shaped error for a status and message.
func NewGemini(status int, message string) GeminiError {
	var e GeminiError
	e.Error.Code = status
	e.Error.Message = message
	return e
}

// MarshalOpenAI returns the JSON bytes of an OpenAI-shaped error. Marshaling
// a plain struct of strings and ints cannot fail, so the error is dropped.
func MarshalOpenAI(status int, message string) []byte {
	b, _ := json.Marshal(NewOpenAI(status, message))
	return b
}

// MarshalGemini returns the JSON bytes of a Gemini-shaped error.
func MarshalGemini(status int, message string) []byte {
	b, _ := json.Marshal(NewGemini(status, message))
	return b
}
