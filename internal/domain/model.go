// Package domain defines the core entities and value objects of shai-bridge.
//
// This file holds the reasoning-backend model definitions read from the config
// file. The domain layer has no infrastructure dependencies.
package domain

// ModelDefinition describes one reasoning backend endpoint declared in the config file.
type ModelDefinition struct {
	Name string `yaml:"name"`
	// Provider selects an APIFormat preset: "openai", "anthropic", "ollama" or "" (use APIFormat as-is).
	Provider    string          `yaml:"provider,omitempty"`
	Endpoint    string          `yaml:"endpoint"`
	AuthEnvVar  string          `yaml:"auth_env_var"`
	OrgEnvVar   string          `yaml:"org_env_var,omitempty"`
	ModelID     string          `yaml:"model_id"`
	MaxTokens   int             `yaml:"max_tokens"`
	Temperature float64         `yaml:"temperature,omitempty"`
	Prompt      []PromptMessage `yaml:"prompt,omitempty"`
	APIFormat   APIFormat       `yaml:"api_format,omitempty"`
}

// APIFormat defines how requests are built and responses parsed for a given HTTP API.
// All fields are optional; zero values mean the OpenAI-compatible chat format.
type APIFormat struct {
	// AuthHeaderName is the header carrying the API key. Default "Authorization".
	AuthHeaderName string `yaml:"auth_header_name,omitempty"`

	// AuthHeaderPrefix is prepended to the key. Default "Bearer ".
	// Left empty on purpose when AuthHeaderName is customised (x-api-key style).
	AuthHeaderPrefix string `yaml:"auth_header_prefix,omitempty"`

	// SystemMessageMode is "inline" (messages array) or "separate" (top-level "system" field).
	SystemMessageMode string `yaml:"system_message_mode,omitempty"`

	// ContentWrapper is "standard" (string content) or "anthropic" ([{"type":"text","text":...}]).
	ContentWrapper string `yaml:"content_wrapper,omitempty"`

	// ResponseJSONPath locates the generated text, e.g. "choices[0].message.content".
	ResponseJSONPath string `yaml:"response_json_path,omitempty"`

	// ExtraHeaders are sent verbatim with every request.
	ExtraHeaders map[string]string `yaml:"extra_headers,omitempty"`
}

// PromptMessage follows the role/content pair required by most chat APIs.
type PromptMessage struct {
	Role    string `yaml:"role"`
	Content string `yaml:"content"`
}

const (
	DefaultAuthHeaderName   = "Authorization"
	DefaultAuthHeaderPrefix = "Bearer "

	SystemMessageModeInline   = "inline"
	SystemMessageModeSeparate = "separate"

	ContentWrapperStandard  = "standard"
	ContentWrapperAnthropic = "anthropic"

	DefaultResponsePath   = "choices[0].message.content" // OpenAI / Ollama
	AnthropicResponsePath = "content[0].text"
)

// GetAuthHeaderName returns the authentication header name with default fallback.
func (f APIFormat) GetAuthHeaderName() string {
	if f.AuthHeaderName == "" {
		return DefaultAuthHeaderName
	}
	return f.AuthHeaderName
}

// GetAuthHeaderPrefix returns the authentication header prefix with default fallback.
func (f APIFormat) GetAuthHeaderPrefix() string {
	if f.AuthHeaderPrefix != "" {
		return f.AuthHeaderPrefix
	}
	if f.AuthHeaderName != "" {
		return ""
	}
	return DefaultAuthHeaderPrefix
}

// GetResponseJSONPath returns the JSON path for extracting response content.
func (f APIFormat) GetResponseJSONPath() string {
	if f.ResponseJSONPath == "" {
		return DefaultResponsePath
	}
	return f.ResponseJSONPath
}

// IsSystemMessageSeparate returns true if system messages go in a separate field.
func (f APIFormat) IsSystemMessageSeparate() bool {
	return f.SystemMessageMode == SystemMessageModeSeparate
}

// IsContentWrapped returns true if content is wrapped in Anthropic's array format.
func (f APIFormat) IsContentWrapped() bool {
	return f.ContentWrapper == ContentWrapperAnthropic
}
