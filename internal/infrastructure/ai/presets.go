package ai

import (
	"strings"

	"github.com/doeshing/shai-bridge/internal/domain"
)

// Provider names accepted in model definitions.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderHeuristic = "heuristic"
)

const (
	defaultOpenAIEndpoint    = "https://api.openai.com/v1/chat/completions"
	defaultAnthropicEndpoint = "https://api.anthropic.com/v1/messages"
	defaultOllamaEndpoint    = "http://localhost:11434/v1/chat/completions"
	anthropicVersion         = "2023-06-01"
)

// ApplyPreset fills the zero-valued parts of a model's APIFormat from its provider.
// When Provider is empty it is inferred from the endpoint and name. Explicit
// settings always win over the preset.
func ApplyPreset(model domain.ModelDefinition) domain.ModelDefinition {
	provider := strings.ToLower(strings.TrimSpace(model.Provider))
	if provider == "" {
		provider = inferProvider(model.Endpoint, model.Name)
	}
	model.Provider = provider

	format := model.APIFormat
	switch provider {
	case ProviderAnthropic:
		if model.Endpoint == "" {
			model.Endpoint = defaultAnthropicEndpoint
		}
		if model.AuthEnvVar == "" {
			model.AuthEnvVar = "ANTHROPIC_API_KEY"
		}
		if format.AuthHeaderName == "" {
			format.AuthHeaderName = "x-api-key"
		}
		if format.SystemMessageMode == "" {
			format.SystemMessageMode = domain.SystemMessageModeSeparate
		}
		if format.ContentWrapper == "" {
			format.ContentWrapper = domain.ContentWrapperAnthropic
		}
		if format.ResponseJSONPath == "" {
			format.ResponseJSONPath = domain.AnthropicResponsePath
		}
		format.ExtraHeaders = withHeader(format.ExtraHeaders, "anthropic-version", anthropicVersion)
		if model.MaxTokens == 0 {
			// The messages API rejects requests without max_tokens.
			model.MaxTokens = 1024
		}
	case ProviderOpenAI:
		if model.Endpoint == "" {
			model.Endpoint = defaultOpenAIEndpoint
		}
		if model.AuthEnvVar == "" {
			model.AuthEnvVar = "OPENAI_API_KEY"
		}
	case ProviderOllama:
		if model.Endpoint == "" {
			model.Endpoint = defaultOllamaEndpoint
		}
	}
	model.APIFormat = format
	return model
}

func inferProvider(endpoint, name string) string {
	endpoint = strings.ToLower(endpoint)
	nameLower := strings.ToLower(name)

	switch {
	case strings.Contains(endpoint, "anthropic.com"):
		return ProviderAnthropic
	case strings.Contains(endpoint, "openai.com"):
		return ProviderOpenAI
	case strings.Contains(nameLower, "ollama"), strings.Contains(endpoint, "11434"):
		return ProviderOllama
	case endpoint == "" && strings.Contains(nameLower, "heuristic"):
		return ProviderHeuristic
	default:
		return ""
	}
}

func withHeader(headers map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	for k := range out {
		if strings.EqualFold(k, key) {
			return out
		}
	}
	out[key] = value
	return out
}
