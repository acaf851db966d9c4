// Package ai provides the reasoning backend factory and the HTTP-based backend.
//
// This package implements a unified, configuration-driven approach to backends:
//   - Factory: Creates backend instances based on model definitions
//   - HTTP Backend: Generic HTTP client supporting any chat API via YAML config
//   - Prompt Templates: Renders sanitized requests with context using Go templates
//
// All provider-specific behavior is controlled through the model's APIFormat configuration
// (optionally seeded from a named preset), so no per-vendor adapter types are needed.
// Backends receive already-sanitized text and return the raw proposal, still
// containing placeholders.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/ports"
)

const (
	httpClientTimeout = 120 * time.Second
	maxResponseBytes  = 1 << 20
)

// ====================================================================================
// Factory
// ====================================================================================

// Factory creates backend instances based on model definitions.
// It maintains a single HTTP client shared across all backends.
type Factory struct {
	httpClient  *http.Client
	credentials ports.CredentialStore
}

// NewFactory creates a new backend factory. credentials resolves API keys by env var name.
func NewFactory(credentials ports.CredentialStore) *Factory {
	return &Factory{
		httpClient:  &http.Client{Timeout: httpClientTimeout},
		credentials: credentials,
	}
}

// WithHTTPClient swaps the shared HTTP client.
func (f *Factory) WithHTTPClient(client *http.Client) *Factory {
	f.httpClient = client
	return f
}

// ForModel creates a backend for the model definition, applying its provider preset.
func (f *Factory) ForModel(model domain.ModelDefinition) (ports.Backend, error) {
	model = ApplyPreset(model)
	if strings.EqualFold(model.Provider, ProviderHeuristic) {
		return NewHeuristicBackend(), nil
	}
	if strings.TrimSpace(model.Endpoint) == "" {
		return nil, fmt.Errorf("model %q has no endpoint", model.Name)
	}
	return &httpBackend{model: model, httpClient: f.httpClient, credentials: f.credentials}, nil
}

var _ ports.BackendFactory = (*Factory)(nil)

// ====================================================================================
// HTTP Backend
// ====================================================================================

// httpBackend is a configuration-driven HTTP-based reasoning backend.
type httpBackend struct {
	model       domain.ModelDefinition
	httpClient  *http.Client
	credentials ports.CredentialStore
}

func (b *httpBackend) Name() string {
	return b.model.Name
}

func (b *httpBackend) Send(ctx context.Context, req domain.BackendRequest) (domain.BackendResponse, error) {
	messages, err := renderPromptMessages(b.model, req)
	if err != nil {
		return domain.BackendResponse{}, fmt.Errorf("render prompt: %w", err)
	}

	requestBody, err := b.buildRequestBody(messages, req.Options)
	if err != nil {
		return domain.BackendResponse{}, fmt.Errorf("build request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.model.Endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return domain.BackendResponse{}, fmt.Errorf("create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if err := b.setAuthHeaders(ctx, httpReq); err != nil {
		return domain.BackendResponse{}, err
	}
	b.setExtraHeaders(httpReq)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return domain.BackendResponse{}, transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.BackendResponse{}, transportError(ctx, err)
	}

	if resp.StatusCode >= 400 {
		return domain.BackendResponse{}, statusError(resp.StatusCode, body)
	}

	content, err := b.parseResponse(body)
	if err != nil {
		return domain.BackendResponse{}, &domain.BackendError{
			Kind:       domain.FailureMalformedResponse,
			StatusCode: resp.StatusCode,
			Message:    err.Error(),
			Err:        domain.ErrMalformedResponse,
		}
	}

	return parseProposal(content)
}

// buildRequestBody constructs the JSON request body based on the model's APIFormat configuration.
func (b *httpBackend) buildRequestBody(messages []domain.PromptMessage, opts domain.BackendOptions) ([]byte, error) {
	format := b.model.APIFormat

	request := map[string]interface{}{
		"model":  b.model.ModelID,
		"stream": false,
	}

	maxTokens := b.model.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	if maxTokens > 0 {
		request["max_tokens"] = maxTokens
	}
	temperature := b.model.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	if temperature > 0 {
		request["temperature"] = temperature
	}

	// Handle system messages based on configuration
	if format.IsSystemMessageSeparate() {
		systemPrompt, chatMessages := splitSystemMessages(messages, format)
		if systemPrompt != "" {
			request["system"] = systemPrompt
		}
		request["messages"] = chatMessages
	} else {
		request["messages"] = formatMessagesInline(messages, format)
	}

	return json.Marshal(request)
}

// splitSystemMessages separates system messages from chat messages for providers
// that require system messages in a separate field (e.g., Anthropic).
func splitSystemMessages(messages []domain.PromptMessage, format domain.APIFormat) (string, []map[string]interface{}) {
	var systemLines []string
	var chatMessages []map[string]interface{}

	for _, msg := range messages {
		if strings.EqualFold(msg.Role, "system") {
			systemLines = append(systemLines, msg.Content)
			continue
		}
		chatMessages = append(chatMessages, formatMessage(msg, format))
	}

	return strings.TrimSpace(strings.Join(systemLines, "\n")), chatMessages
}

// formatMessagesInline formats all messages (including system) into the messages array.
func formatMessagesInline(messages []domain.PromptMessage, format domain.APIFormat) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		result = append(result, formatMessage(msg, format))
	}
	return result
}

// formatMessage formats a single message based on the content wrapper configuration.
func formatMessage(msg domain.PromptMessage, format domain.APIFormat) map[string]interface{} {
	message := map[string]interface{}{
		"role": strings.ToLower(msg.Role),
	}

	if format.IsContentWrapped() {
		message["content"] = []map[string]string{
			{"type": "text", "text": msg.Content},
		}
	} else {
		message["content"] = msg.Content
	}

	return message
}

// setAuthHeaders configures authentication headers. Models without an auth env var
// (local Ollama, for instance) are sent unauthenticated.
func (b *httpBackend) setAuthHeaders(ctx context.Context, req *http.Request) error {
	if b.model.AuthEnvVar == "" {
		return nil
	}
	apiKey, err := b.apiKey(ctx, b.model.AuthEnvVar)
	if err != nil {
		return err
	}

	format := b.model.APIFormat
	req.Header.Set(format.GetAuthHeaderName(), format.GetAuthHeaderPrefix()+apiKey)

	if b.model.OrgEnvVar != "" {
		if orgID, err := b.apiKey(ctx, b.model.OrgEnvVar); err == nil && orgID != "" {
			req.Header.Set("OpenAI-Organization", orgID)
		}
	}
	return nil
}

func (b *httpBackend) apiKey(ctx context.Context, name string) (string, error) {
	if b.credentials == nil {
		return "", &domain.BackendError{
			Kind:    domain.FailureInvalidCredential,
			Message: "no credential store configured",
			Err:     domain.ErrInvalidCredential,
		}
	}
	key, err := b.credentials.APIKey(ctx, name)
	if err != nil || strings.TrimSpace(key) == "" {
		msg := fmt.Sprintf("missing API key: set %s or store it with `shai-bridge keys set %s`", name, name)
		return "", &domain.BackendError{
			Kind:    domain.FailureInvalidCredential,
			Message: msg,
			Err:     err,
		}
	}
	return key, nil
}

// setExtraHeaders adds any additional headers defined in the APIFormat configuration.
func (b *httpBackend) setExtraHeaders(req *http.Request) {
	for key, value := range b.model.APIFormat.ExtraHeaders {
		req.Header.Set(key, value)
	}
}

// parseResponse extracts the generated text from the JSON response using the configured JSON path.
func (b *httpBackend) parseResponse(body []byte) (string, error) {
	var response map[string]interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("unmarshal JSON: %w", err)
	}

	path := b.model.APIFormat.GetResponseJSONPath()
	content, err := extractJSONPath(response, path)
	if err != nil {
		return "", fmt.Errorf("extract from path '%s': %w", path, err)
	}

	return strings.TrimSpace(content), nil
}
