// Package antigravity – constants.go
// OAuth and API constants for the Antigravity backend. The client id and
// secret are the public desktop-client credentials shipped inside the
// Antigravity IDE; they are not secrets.
package antigravity

import (
	"fmt"
	"math/rand"
	"runtime"
)

// OAuth client credentials (from the Antigravity desktop client, public).
const (
	ClientID     = "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com"
	ClientSecret = "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"
)

// OAuth endpoints.
const (
	AuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	TokenURL    = "https://oauth2.googleapis.com/token"
	UserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// Scopes requested at login.
var Scopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/cclog",
	"https://www.googleapis.com/auth/experimentsandconfigs",
}

// API endpoints, in fallback order daily → autopush → prod.
const (
	APIEndpointDaily    = "https://daily-cloudcode-pa.sandbox.googleapis.com"
	APIEndpointAutopush = "https://autopush-cloudcode-pa.sandbox.googleapis.com"
	APIEndpointProd     = "https://cloudcode-pa.googleapis.com"
)

var APIEndpointFallbacks = []string{
	APIEndpointDaily,
	APIEndpointAutopush,
	APIEndpointProd,
}

// API paths.
const (
	GenerateContentPath       = "/v1internal:generateContent"
	StreamGenerateContentPath = "/v1internal:streamGenerateContent"
	LoadCodeAssistPath        = "/v1internal:loadCodeAssist"
)

// OAuth callback.
const (
	OAuthRedirectPort = 51121
	OAuthRedirectURI  = "http://localhost:51121/oauth-callback"
)

// Antigravity version to impersonate.
const AntigravityVersion = "1.15.8"

var antigravityPlatforms = []string{"windows/amd64", "darwin/arm64", "darwin/amd64"}

// randomizedUserAgent returns the short-format User-Agent used by the
// Antigravity Manager on content requests.
func randomizedUserAgent() string {
	plat := antigravityPlatforms[rand.Intn(len(antigravityPlatforms))]
	return fmt.Sprintf("antigravity/%s %s", AntigravityVersion, plat)
}

// defaultHeaders is the full header set, used for loadCodeAssist discovery
// only. Content requests must NOT carry X-Goog-Api-Client or
// Client-Metadata; the upstream endpoint rejects them.
func defaultHeaders() map[string]string {
	platformTag := "WINDOWS"
	if runtime.GOOS == "darwin" {
		platformTag = "MACOS"
	}
	return map[string]string{
		"Content-Type": "application/json",
		"User-Agent": fmt.Sprintf(
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
				"(KHTML, like Gecko) Antigravity/%s "+
				"Chrome/138.0.7204.235 Electron/37.3.1 Safari/537.36",
			AntigravityVersion),
		"X-Goog-Api-Client": "google-cloud-sdk vscode_cloudshelleditor/0.1",
		"Client-Metadata": fmt.Sprintf(
			`{"ideType":"ANTIGRAVITY","platform":"%s","pluginType":"GEMINI"}`,
			platformTag),
	}
}

// contentRequestHeaders is the minimal set for generateContent and
// streamGenerateContent. Only User-Agent here; Authorization is added per
// request.
func contentRequestHeaders() map[string]string {
	return map[string]string{
		"User-Agent": randomizedUserAgent(),
	}
}

// Models available through this provider.
var Models = []string{
	"claude-sonnet-4-5",
	"claude-sonnet-4-5-thinking",
	"claude-opus-4-6-thinking",
	"gemini-3-pro",
	"gemini-3-flash",
	"gemini-2.5-flash",
	"gemini-2.5-pro",
	"gemini-3-flash-preview",
	"gemini-3-pro-preview",
}

// DefaultModel is used when the config names none.
const DefaultModel = "claude-sonnet-4-5"

// modelAliases maps deprecated and shorthand names to current models.
var modelAliases = map[string]string{
	"claude-opus-4-5":          "claude-opus-4-6-thinking",
	"claude-opus-4-5-thinking": "claude-opus-4-6-thinking",
	"claude-opus-4-6":          "claude-opus-4-6-thinking",
}

// litellmPrefixes are provider routing prefixes stripped from model names.
var litellmPrefixes = []string{
	"anthropic/", "openai/", "google/", "bedrock/",
	"vertex_ai/", "deepseek/", "groq/", "openrouter/",
}

// DefaultProjectID is the fallback when loadCodeAssist returns no project
// (business accounts).
const DefaultProjectID = "rising-fact-p41fc"

// Retry and fallback policy.
const (
	MaxRetries     = 3
	RetryBaseDelay = 1.0 // seconds, doubles each attempt
	RetryAfterCapS = 60
)

var retryableStatusCodes = map[int]bool{429: true, 500: true, 503: true}

// Fallback statuses move to the next endpoint without retrying the current one.
var fallbackStatusCodes = map[int]bool{403: true, 404: true}

// rejectedSchemaKeys are JSON Schema keys the Gemini API refuses.
var rejectedSchemaKeys = map[string]bool{
	"const": true, "$ref": true, "$defs": true,
	"default": true, "examples": true, "title": true,
}
