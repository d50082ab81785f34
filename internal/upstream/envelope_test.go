package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestBuildFromNativeIdempotent(t *testing.T) {
	body := []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}],"generationConfig":{"temperature":0.5}}`)

	first, err := BuildFromNative("gemini-2.5-pro-maxthinking", body)
	require.NoError(t, err)
	second, err := BuildFromNative("gemini-2.5-pro-maxthinking", body)
	require.NoError(t, err)

	assert.Equal(t, first.Model, second.Model)
	assert.Equal(t, string(first.Request), string(second.Request))
}

func TestBuildFromNativeDoesNotMutateInput(t *testing.T) {
	body := []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`)
	orig := string(body)

	_, err := BuildFromNative("gemini-2.5-pro", body)
	require.NoError(t, err)
	assert.Equal(t, orig, string(body))
}

func TestBuildFromNativeResolvesBaseModel(t *testing.T) {
	for variant, base := range map[string]string{
		"gemini-2.5-pro":             "gemini-2.5-pro",
		"gemini-2.5-pro-search":      "gemini-2.5-pro",
		"gemini-2.5-pro-nothinking":  "gemini-2.5-pro",
		"gemini-2.5-pro-maxthinking": "gemini-2.5-pro",
	} {
		env, err := BuildFromNative(variant, []byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, base, env.Model, variant)
	}
}

func TestSafetyDefaultsOnlyWhenAbsent(t *testing.T) {
	env, err := BuildFromNative("gemini-2.5-pro", []byte(`{}`))
	require.NoError(t, err)
	settings := gjson.GetBytes(env.Request, "safetySettings")
	require.True(t, settings.IsArray())
	assert.Len(t, settings.Array(), 11)
	for _, s := range settings.Array() {
		assert.Equal(t, "BLOCK_NONE", s.Get("threshold").String())
	}

	custom := []byte(`{"safetySettings":[{"category":"HARM_CATEGORY_HARASSMENT","threshold":"BLOCK_ONLY_HIGH"}]}`)
	env, err = BuildFromNative("gemini-2.5-pro", custom)
	require.NoError(t, err)
	settings = gjson.GetBytes(env.Request, "safetySettings")
	require.Len(t, settings.Array(), 1)
	assert.Equal(t, "BLOCK_ONLY_HIGH", settings.Array()[0].Get("threshold").String())
}

func TestThinkingConfigApplication(t *testing.T) {
	// Eligible family, max variant: budget and thoughts filled in.
	env, err := BuildFromNative("gemini-2.5-pro-maxthinking", []byte(`{}`))
	require.NoError(t, err)
	tc := gjson.GetBytes(env.Request, "generationConfig.thinkingConfig")
	require.True(t, tc.Exists())
	assert.Equal(t, int64(32768), tc.Get("thinkingBudget").Int())
	assert.True(t, tc.Get("includeThoughts").Bool())

	// Plain eligible model: dynamic budget.
	env, err = BuildFromNative("gemini-2.5-flash", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, int64(-1),
		gjson.GetBytes(env.Request, "generationConfig.thinkingConfig.thinkingBudget").Int())
}

func TestThinkingConfigNeverForUnsupportedFamilies(t *testing.T) {
	for _, model := range []string{"gemini-2.0-flash", "gemini-2.5-flash-lite", "gemini-2.0-flash-search"} {
		env, err := BuildFromNative(model, []byte(`{}`))
		require.NoError(t, err)
		assert.False(t,
			gjson.GetBytes(env.Request, "generationConfig.thinkingConfig").Exists(),
			"%s must not carry a thinkingConfig", model)
	}
}

func TestCallerThinkingBudgetWins(t *testing.T) {
	body := []byte(`{"generationConfig":{"thinkingConfig":{"thinkingBudget":7}}}`)
	env, err := BuildFromNative("gemini-2.5-pro-maxthinking", body)
	require.NoError(t, err)
	assert.Equal(t, int64(7),
		gjson.GetBytes(env.Request, "generationConfig.thinkingConfig.thinkingBudget").Int())
}

func TestSearchToolInjection(t *testing.T) {
	env, err := BuildFromNative("gemini-2.5-pro-search", []byte(`{}`))
	require.NoError(t, err)
	tools := gjson.GetBytes(env.Request, "tools")
	require.Len(t, tools.Array(), 1)
	assert.True(t, tools.Array()[0].Get("googleSearch").Exists())

	// Already present: not duplicated.
	body := []byte(`{"tools":[{"googleSearch":{}}]}`)
	env, err = BuildFromNative("gemini-2.5-pro-search", body)
	require.NoError(t, err)
	assert.Len(t, gjson.GetBytes(env.Request, "tools").Array(), 1)

	// Other tools present: appended alongside.
	body = []byte(`{"tools":[{"functionDeclarations":[{"name":"f"}]}]}`)
	env, err = BuildFromNative("gemini-2.5-pro-search", body)
	require.NoError(t, err)
	assert.Len(t, gjson.GetBytes(env.Request, "tools").Array(), 2)

	// Non-search models never gain the tool.
	env, err = BuildFromNative("gemini-2.5-pro", []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(env.Request, "tools").Exists())
}

func TestBuildFromNativeRejectsInvalidJSON(t *testing.T) {
	_, err := BuildFromNative("gemini-2.5-pro", []byte(`{not json`))
	assert.Error(t, err)
}

func TestEnvelopeMarshal(t *testing.T) {
	env, err := BuildFromNative("gemini-2.5-pro", []byte(`{"contents":[]}`))
	require.NoError(t, err)

	wire, err := env.marshal("proj-1")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", gjson.GetBytes(wire, "model").String())
	assert.Equal(t, "proj-1", gjson.GetBytes(wire, "project").String())
	assert.True(t, gjson.GetBytes(wire, "request.safetySettings").IsArray())
}
