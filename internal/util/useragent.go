package util

import (
	"fmt"
	"runtime"

	"github.com/MattyMroz/geminicli2api/internal/config"
)

// UserAgent builds the User-Agent string sent on every upstream request,
// e.g. "GeminiCLI/0.1.5 (linux; amd64)".
func UserAgent() string {
	return fmt.Sprintf("GeminiCLI/%s (%s; %s)", config.CLIVersion, runtime.GOOS, runtime.GOARCH)
}

// ClientMetadata describes the calling client to the Code Assist API. It is
// attached to loadCodeAssist and onboardUser requests.
func ClientMetadata() map[string]string {
	return map[string]string{
		"ideType":     "IDE_UNSPECIFIED",
		"platform":    "PLATFORM_UNSPECIFIED",
		"pluginType":  "GEMINI",
		"duetProject": "",
	}
}

// ClientMetadataForProject returns ClientMetadata with duetProject set.
func ClientMetadataForProject(projectID string) map[string]string {
	m := ClientMetadata()
	m["duetProject"] = projectID
	return m
}
