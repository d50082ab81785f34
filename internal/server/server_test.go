package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/MattyMroz/geminicli2api/internal/account"
	"github.com/MattyMroz/geminicli2api/internal/config"
	"github.com/MattyMroz/geminicli2api/internal/onboarding"
	"github.com/MattyMroz/geminicli2api/internal/upstream"
)

const testPassword = "pw"

// fakeBackend scripts the Code Assist side: provisioning always succeeds,
// generate answers come from the configured handler.
type fakeBackend struct {
	generate func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ":loadCodeAssist"):
			fmt.Fprint(w, `{"currentTier":{"id":"standard-tier"}}`)
		case strings.Contains(r.URL.Path, "GenerateContent"), strings.HasSuffix(r.URL.Path, ":generateContent"):
			f.generate(w, r)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestServer(t *testing.T, backend *fakeBackend) *Server {
	t.Helper()
	upstreamSrv := httptest.NewServer(backend.handler())
	t.Cleanup(upstreamSrv.Close)

	dir := t.TempDir()
	record := `{"token":"tok","refresh_token":"rt","expiry":"2099-01-02T15:04:05Z","project_id":"proj"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "account_1.json"), []byte(record), 0o600))

	store, err := account.NewStore(dir)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.AuthPassword = testPassword
	cfg.AccountsDir = dir
	cfg.CodeAssistEndpoint = upstreamSrv.URL

	onboard := onboarding.New(upstreamSrv.URL, "test-agent", store, "")
	client := upstream.NewClient(upstreamSrv.URL, "test-agent")
	dispatcher := upstream.NewDispatcher(store, onboard, client)
	return New(cfg, store, dispatcher)
}

func do(t *testing.T, s *Server, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authed {
		req.Header.Set("Authorization", "Bearer "+testPassword)
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func TestHealthAndRootUnauthenticated(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	w := do(t, s, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", gjson.Get(w.Body.String(), "status").String())
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "accounts").Int())

	w = do(t, s, http.MethodGet, "/", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "geminicli2api", gjson.Get(w.Body.String(), "name").String())
}

func TestCORSPreflightUnauthenticated(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	w := do(t, s, http.MethodOptions, "/v1/chat/completions", "", false)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	for _, path := range []string{"/v1/models", "/v1beta/models"} {
		w := do(t, s, http.MethodGet, path, "", false)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w := do(t, s, http.MethodPost, "/v1/chat/completions", `{}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOpenAIModelsListStripped(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	w := do(t, s, http.MethodGet, "/v1/models", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Equal(t, "list", gjson.Get(body, "object").String())
	data := gjson.Get(body, "data").Array()
	require.NotEmpty(t, data)
	for _, m := range data {
		assert.False(t, strings.HasPrefix(m.Get("id").String(), "models/"))
		assert.Equal(t, "google", m.Get("owned_by").String())
	}
}

func TestGeminiModelsListFullDescriptors(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	w := do(t, s, http.MethodGet, "/v1beta/models", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	modelList := gjson.Get(w.Body.String(), "models").Array()
	require.NotEmpty(t, modelList)
	first := modelList[0]
	assert.True(t, strings.HasPrefix(first.Get("name").String(), "models/"))
	assert.True(t, first.Get("inputTokenLimit").Exists())
	assert.True(t, first.Get("supportedGenerationMethods").IsArray())
}

func TestChatCompletionsNonStreaming(t *testing.T) {
	backend := &fakeBackend{generate: func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"candidates":[{"content":{"parts":[{"text":"hello"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":2}}}`)
	}}
	s := newTestServer(t, backend)

	w := do(t, s, http.MethodPost, "/v1/chat/completions",
		`{"model":"gemini-2.5-pro","messages":[{"role":"user","content":"hi"}]}`, true)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Equal(t, "chat.completion", gjson.Get(body, "object").String())
	assert.Equal(t, "hello", gjson.Get(body, "choices.0.message.content").String())
	assert.Equal(t, int64(3), gjson.Get(body, "usage.total_tokens").Int())
}

func TestChatCompletionsPreservesUpstreamError(t *testing.T) {
	backend := &fakeBackend{generate: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"message":"X"}}`)
	}}
	s := newTestServer(t, backend)

	w := do(t, s, http.MethodPost, "/v1/chat/completions",
		`{"model":"gemini-2.5-pro","messages":[{"role":"user","content":"hi"}]}`, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	body := w.Body.String()
	assert.Equal(t, "X", gjson.Get(body, "error.message").String())
	assert.Equal(t, "invalid_request_error", gjson.Get(body, "error.type").String())
}

func TestChatCompletionsStreaming(t *testing.T) {
	backend := &fakeBackend{generate: func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "sse", r.URL.Query().Get("alt"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"response\":{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"a\"}]}}]}}\n\n")
		fmt.Fprint(w, "data: {\"response\":{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"b\"}]},\"finishReason\":\"STOP\"}]}}\n\n")
	}}
	s := newTestServer(t, backend)

	w := do(t, s, http.MethodPost, "/v1/chat/completions",
		`{"model":"gemini-2.5-pro","messages":[{"role":"user","content":"hi"}],"stream":true}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	frames := parseSSEFrames(w.Body.String())
	require.Len(t, frames, 3)
	assert.Equal(t, "a", gjson.Get(frames[0], "choices.0.delta.content").String())
	assert.Equal(t, "assistant", gjson.Get(frames[0], "choices.0.delta.role").String())
	assert.Equal(t, "b", gjson.Get(frames[1], "choices.0.delta.content").String())
	assert.Equal(t, "stop", gjson.Get(frames[1], "choices.0.finish_reason").String())
	assert.Equal(t, "[DONE]", frames[2])
}

func TestChatCompletionsStreamingUpstreamError(t *testing.T) {
	backend := &fakeBackend{generate: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"backend down"}}`)
	}}
	s := newTestServer(t, backend)

	w := do(t, s, http.MethodPost, "/v1/chat/completions",
		`{"model":"gemini-2.5-pro","messages":[{"role":"user","content":"hi"}],"stream":true}`, true)

	frames := parseSSEFrames(w.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, "backend down", gjson.Get(frames[0], "error.message").String())
	assert.Equal(t, "[DONE]", frames[1])
}

func TestChatCompletionsRejectsBadJSON(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	w := do(t, s, http.MethodPost, "/v1/chat/completions", `{not json`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request_error", gjson.Get(w.Body.String(), "error.type").String())
}

func TestNativeGenerateUnary(t *testing.T) {
	backend := &fakeBackend{generate: func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"candidates":[{"content":{"parts":[{"text":"native"}]}}]}}`)
	}}
	s := newTestServer(t, backend)

	for _, path := range []string{
		"/v1beta/models/gemini-2.5-pro:generateContent",
		"/v1/models/gemini-2.5-pro:generateContent",
		"/v1beta/models/gemini-2.5-pro",
	} {
		w := do(t, s, http.MethodPost, path, `{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`, true)
		require.Equal(t, http.StatusOK, w.Code, path)
		// The response envelope is unwrapped to the standard shape.
		assert.Equal(t, "native", gjson.Get(w.Body.String(), "candidates.0.content.parts.0.text").String(), path)
		assert.False(t, gjson.Get(w.Body.String(), "response").Exists(), path)
	}
}

func TestNativeStreamPassthrough(t *testing.T) {
	backend := &fakeBackend{generate: func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "sse", r.URL.Query().Get("alt"))
		fmt.Fprint(w, "data: {\"response\":{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"s1\"}]}}]}}\n\n")
		fmt.Fprint(w, "data: {\"response\":{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"s2\"}]}}]}}\n\n")
	}}
	s := newTestServer(t, backend)

	w := do(t, s, http.MethodPost, "/v1beta/models/gemini-2.5-pro:streamGenerateContent",
		`{"contents":[]}`, true)
	require.Equal(t, http.StatusOK, w.Code)

	frames := parseSSEFrames(w.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, "s1", gjson.Get(frames[0], "candidates.0.content.parts.0.text").String())
	assert.Equal(t, "s2", gjson.Get(frames[1], "candidates.0.content.parts.0.text").String())
}

func TestNativeRejectsBadJSON(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	w := do(t, s, http.MethodPost, "/v1beta/models/gemini-2.5-pro:generateContent", `{not json`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid JSON in request body", gjson.Get(w.Body.String(), "error.message").String())
}

// parseSSEFrames extracts the payload of each data: frame.
func parseSSEFrames(body string) []string {
	var frames []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	return frames
}
