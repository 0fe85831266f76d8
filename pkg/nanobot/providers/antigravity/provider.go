// Package antigravity – provider.go
// LLM provider backed by Google's Antigravity unified gateway. Speaks the
// Gemini v1internal wire format directly, with retry, endpoint failover,
// and SSE streaming.
package antigravity

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hkuds/nanobot/pkg/nanobot/providers"
)

// ErrAllEndpointsFailed is returned when every endpoint in the fallback
// chain has been exhausted.
var ErrAllEndpointsFailed = errors.New("all antigravity endpoints exhausted")

// HTTPError is a non-2xx response from the gateway.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("antigravity API error %d: %s", e.Status, truncate(e.Body, 200))
}

// Provider implements providers.LLMProvider against the Antigravity API.
type Provider struct {
	auth       *AuthManager
	httpClient *http.Client
	logger     *slog.Logger

	endpoints    []string
	defaultModel string

	// sessionID is stable per provider instance; the API uses it for
	// signature caching.
	sessionID string

	projectID      string // explicit override, skips discovery
	projectMu      sync.Mutex
	projectIDCache map[string]string

	retryBaseDelay time.Duration
}

var _ providers.LLMProvider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithEndpoint pins a single endpoint, disabling fallback for unknown ones.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoints = orderedEndpoints(endpoint)
	}
}

// WithProjectID skips loadCodeAssist discovery.
func WithProjectID(id string) Option {
	return func(p *Provider) { p.projectID = id }
}

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(model string) Option {
	return func(p *Provider) { p.defaultModel = model }
}

// WithHTTPClient replaces the HTTP client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithRetryBaseDelay overrides the backoff base (tests pass 0).
func WithRetryBaseDelay(d time.Duration) Option {
	return func(p *Provider) { p.retryBaseDelay = d }
}

// New creates a Provider over the given auth manager.
func New(auth *AuthManager, opts ...Option) *Provider {
	p := &Provider{
		auth:           auth,
		httpClient:     &http.Client{Timeout: 300 * time.Second},
		logger:         slog.Default().With("component", "antigravity"),
		endpoints:      orderedEndpoints(APIEndpointDaily),
		defaultModel:   DefaultModel,
		sessionID:      "-" + uuid.NewString(),
		projectIDCache: make(map[string]string),
		retryBaseDelay: time.Duration(RetryBaseDelay * float64(time.Second)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// orderedEndpoints puts the preferred endpoint first followed by the rest
// of the fallback chain. An unknown endpoint gets no fallback.
func orderedEndpoints(preferred string) []string {
	known := false
	for _, ep := range APIEndpointFallbacks {
		if ep == preferred {
			known = true
			break
		}
	}
	if !known {
		return []string{preferred}
	}
	out := []string{preferred}
	for _, ep := range APIEndpointFallbacks {
		if ep != preferred {
			out = append(out, ep)
		}
	}
	return out
}

// ── Project discovery ──────────────────────────────────────────────────

// ensureProjectID returns the cloudaicompanionProject for the active
// account. The API rejects synthetic project ids, so the value must come
// from loadCodeAssist; discovery failure falls back to DefaultProjectID.
func (p *Provider) ensureProjectID(ctx context.Context, token string) string {
	if p.projectID != "" {
		return p.projectID
	}

	email := p.auth.Email()
	p.projectMu.Lock()
	defer p.projectMu.Unlock()
	if cached, ok := p.projectIDCache[email]; ok {
		return cached
	}

	body := []byte(`{"metadata":{"ideType":"ANTIGRAVITY","platform":2,"pluginType":"GEMINI"}}`)

	// loadCodeAssist tries prod first, then the sandboxes.
	n := len(p.endpoints)
	endpoints := append([]string{p.endpoints[n-1]}, p.endpoints[:n-1]...)
	for _, ep := range endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep+LoadCodeAssistPath, bytes.NewReader(body))
		if err != nil {
			continue
		}
		for k, v := range defaultHeaders() {
			req.Header.Set(k, v)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			continue
		}
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			continue
		}

		var payload struct {
			CloudAICompanionProject string `json:"cloudaicompanionProject"`
		}
		if err := json.Unmarshal(data, &payload); err == nil && payload.CloudAICompanionProject != "" {
			p.logger.Info("discovered project", "email", email, "project", payload.CloudAICompanionProject)
			p.projectIDCache[email] = payload.CloudAICompanionProject
			return payload.CloudAICompanionProject
		}
	}

	p.logger.Warn("project discovery failed, using default", "project", DefaultProjectID)
	p.projectIDCache[email] = DefaultProjectID
	return DefaultProjectID
}

// ── Model resolution ───────────────────────────────────────────────────

var tierSuffixes = []string{"-minimal", "-low", "-medium", "-high"}

// resolveModel maps a user-facing model name to the API model name:
// strip LiteLLM provider prefixes and the antigravity- prefix, drop
// -preview, apply aliases, and default gemini-3-pro to the -low tier.
func resolveModel(model string) string {
	resolved := strings.TrimSpace(model)
	lower := strings.ToLower(resolved)

	for _, prefix := range litellmPrefixes {
		if strings.HasPrefix(lower, prefix) {
			resolved = resolved[len(prefix):]
			break
		}
	}
	if strings.HasPrefix(strings.ToLower(resolved), "antigravity-") {
		resolved = resolved[len("antigravity-"):]
	}
	if strings.HasSuffix(strings.ToLower(resolved), "-preview") {
		resolved = resolved[:len(resolved)-len("-preview")]
	}
	if alias, ok := modelAliases[resolved]; ok {
		resolved = alias
	}

	lower = strings.ToLower(resolved)
	if strings.HasPrefix(lower, "gemini-3-pro") {
		tiered := false
		for _, suffix := range tierSuffixes {
			if strings.HasSuffix(lower, suffix) {
				tiered = true
				break
			}
		}
		if !tiered {
			resolved += "-low"
		}
	}
	return resolved
}

func isThinkingModel(model string) bool {
	return strings.HasSuffix(strings.ToLower(model), "-thinking")
}

// ── Request building ───────────────────────────────────────────────────

// buildRequestBody wraps a Gemini-format request in the v1internal envelope:
//
//	{
//	  "project": "<project_id>",
//	  "model": "<api model>",
//	  "request": { contents, generationConfig, ... },
//	  "requestType": "agent",
//	  "userAgent": "antigravity",
//	  "requestId": "agent-<uuid>"
//	}
func (p *Provider) buildRequestBody(messages []providers.Message, tools []providers.ToolDef, model, projectID string, opts providers.ChatOptions) map[string]any {
	apiModel := resolveModel(model)
	contents, systemInstruction := messagesToGemini(messages)

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	generationConfig := map[string]any{
		"maxOutputTokens": maxTokens,
		"temperature":     temperature,
	}

	request := map[string]any{
		"contents":         contents,
		"generationConfig": generationConfig,
		"sessionId":        p.sessionID,
	}
	if systemInstruction != nil {
		request["systemInstruction"] = systemInstruction
	}
	if geminiTools := toolsToGemini(tools); geminiTools != nil {
		request["tools"] = geminiTools
	}

	if isThinkingModel(apiModel) {
		// High-reasoning models want at least 8192 thinking tokens, and
		// maxOutputTokens must leave room for generation on top of that.
		thinkingBudget := max(8192, maxTokens/2)
		if maxTokens < thinkingBudget+4096 {
			maxTokens = thinkingBudget + 4096
		}
		generationConfig["thinkingConfig"] = map[string]any{
			"includeThoughts": true,
			"thinkingBudget":  thinkingBudget,
		}
		generationConfig["maxOutputTokens"] = maxTokens
	}

	return map[string]any{
		"project":     projectID,
		"model":       apiModel,
		"request":     request,
		"requestType": "agent",
		"userAgent":   "antigravity",
		"requestId":   "agent-" + uuid.NewString(),
	}
}

// ── Retry / failover ───────────────────────────────────────────────────

// retryDelay honors Retry-After (capped at 60s) and otherwise doubles the
// base delay each attempt.
func (p *Provider) retryDelay(resp *http.Response, attempt int) time.Duration {
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if secs, err := strconv.ParseFloat(retryAfter, 64); err == nil {
			if secs > RetryAfterCapS {
				secs = RetryAfterCapS
			}
			return time.Duration(secs * float64(time.Second))
		}
	}
	return p.retryBaseDelay * (1 << attempt)
}

// requestWithRetry posts body to path on each endpoint in order:
// up to MaxRetries attempts per endpoint on 429/500/503 with backoff;
// 403/404 and connection errors move to the next endpoint immediately;
// any other error status is permanent.
func (p *Provider) requestWithRetry(ctx context.Context, path string, body []byte, token string, streaming bool) (*http.Response, error) {
	var lastErr error

	for _, endpoint := range p.endpoints {
		url := endpoint + path
		if streaming {
			url += "?alt=sse"
		}

	attempts:
		for attempt := 0; attempt < MaxRetries; attempt++ {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			for k, v := range contentRequestHeaders() {
				req.Header.Set(k, v)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)
			if streaming {
				req.Header.Set("Accept", "text/event-stream")
			}

			resp, err := p.httpClient.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				lastErr = err
				p.logger.Debug("connection failed, trying next endpoint", "endpoint", endpoint, "error", err)
				break attempts
			}

			switch {
			case resp.StatusCode == http.StatusOK:
				return resp, nil

			case fallbackStatusCodes[resp.StatusCode]:
				lastErr = drainToError(resp)
				p.logger.Debug("fallback-eligible status, trying next endpoint",
					"status", resp.StatusCode, "endpoint", endpoint)
				break attempts

			case retryableStatusCodes[resp.StatusCode]:
				delay := p.retryDelay(resp, attempt)
				lastErr = drainToError(resp)
				if attempt < MaxRetries-1 {
					p.logger.Debug("retrying", "attempt", attempt+1, "delay", delay,
						"status", resp.StatusCode, "endpoint", endpoint)
					select {
					case <-time.After(delay):
					case <-ctx.Done():
						return nil, ctx.Err()
					}
					continue
				}
				p.logger.Debug("retries exhausted, trying next endpoint", "endpoint", endpoint)
				break attempts

			default:
				return nil, drainToError(resp)
			}
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrAllEndpointsFailed, lastErr)
	}
	return nil, ErrAllEndpointsFailed
}

func drainToError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return &HTTPError{Status: resp.StatusCode, Body: string(body)}
}

// ── LLMProvider interface ──────────────────────────────────────────────

// Chat runs one completion. A 401 invalidates the cached token once and
// retries with a fresh one.
func (p *Provider) Chat(ctx context.Context, messages []providers.Message, tools []providers.ToolDef, model string, opts providers.ChatOptions) (*providers.LLMResponse, error) {
	resp, err := p.roundTrip(ctx, GenerateContentPath, messages, tools, model, opts, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return parseResponse(data)
}

// StreamChat runs one completion over SSE, emitting text deltas.
func (p *Provider) StreamChat(ctx context.Context, messages []providers.Message, tools []providers.ToolDef, model string, opts providers.ChatOptions) (<-chan providers.StreamChunk, error) {
	resp, err := p.roundTrip(ctx, StreamGenerateContentPath, messages, tools, model, opts, true)
	if err != nil {
		return nil, err
	}

	out := make(chan providers.StreamChunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimSpace(line[len("data: "):])
			if payload == "[DONE]" {
				break
			}
			delta, err := parseSSEChunk([]byte(payload))
			if err != nil {
				continue
			}
			if delta.Content == "" && delta.Reasoning == "" && len(delta.ToolCalls) == 0 &&
				delta.FinishReason == "" && delta.Usage == nil {
				continue
			}
			chunk := providers.StreamChunk{
				Content:      delta.Content,
				Reasoning:    delta.Reasoning,
				ToolCalls:    delta.ToolCalls,
				FinishReason: delta.FinishReason,
				Usage:        delta.Usage,
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			out <- providers.StreamChunk{Err: err}
			return
		}
		out <- providers.StreamChunk{Done: true}
	}()
	return out, nil
}

func (p *Provider) roundTrip(ctx context.Context, path string, messages []providers.Message, tools []providers.ToolDef, model string, opts providers.ChatOptions, streaming bool) (*http.Response, error) {
	if model == "" {
		model = p.defaultModel
	}

	token, err := p.auth.Token(ctx)
	if err != nil {
		return nil, err
	}

	body := p.buildRequestBody(messages, tools, model, p.ensureProjectID(ctx, token), opts)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	resp, err := p.requestWithRetry(ctx, path, payload, token, streaming)
	if err == nil {
		return resp, nil
	}

	// One shot at recovering from a stale token.
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusUnauthorized {
		p.auth.Invalidate()
		token, tokenErr := p.auth.Token(ctx)
		if tokenErr != nil {
			return nil, tokenErr
		}
		return p.requestWithRetry(ctx, path, payload, token, streaming)
	}
	return nil, err
}

// DefaultModelName returns the model used when requests name none.
func (p *Provider) DefaultModelName() string { return p.defaultModel }
