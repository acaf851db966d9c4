package domain

// Config mirrors ~/.shai-bridge/config.yaml.
type Config struct {
	ConfigFormatVersion string             `yaml:"config_format_version"`
	Preferences         Preferences        `yaml:"preferences"`
	Models              []ModelDefinition  `yaml:"models"`
	Sanitizer           SanitizerSettings  `yaml:"sanitizer"`
	Security            SecuritySettings   `yaml:"security"`
	Suggestions         SuggestionSettings `yaml:"suggestions"`
	History             HistorySettings    `yaml:"history"`
	Favorites           FavoritesSettings  `yaml:"favorites"`
	Credentials         CredentialSettings `yaml:"credentials"`
	Execution           ExecutionSettings  `yaml:"execution"`
	Targets             []Target           `yaml:"targets"`
	Server              ServerSettings     `yaml:"server"`
	Audit               AuditSettings      `yaml:"audit"`
}

// Preferences captures user level toggles.
type Preferences struct {
	DefaultModel   string  `yaml:"default_model"`
	TimeoutSeconds int     `yaml:"timeout"`
	HistoryTurns   int     `yaml:"history_turns"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	Offline        bool    `yaml:"offline"`
}

// SanitizerSettings selects which sensitive categories are masked.
// An empty list masks every category.
type SanitizerSettings struct {
	Categories []string `yaml:"categories,omitempty"`
}

// SecuritySettings points at an optional rules file layered over the built-in rules.
type SecuritySettings struct {
	RulesFile string `yaml:"rules_file"`
}

// SuggestionSettings tunes the ranker cache and budget. Durations use time.ParseDuration syntax.
type SuggestionSettings struct {
	CacheTTL     string `yaml:"cache_ttl"`
	Budget       string `yaml:"budget"`
	CacheEntries int    `yaml:"cache_entries"`
}

// HistorySettings selects the history backend ("sqlite" or "file").
type HistorySettings struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// FavoritesSettings locates the favorites file.
type FavoritesSettings struct {
	Path string `yaml:"path"`
}

// CredentialSettings locates the age-encrypted API key file.
type CredentialSettings struct {
	KeyFile string `yaml:"key_file"`
}

// ExecutionSettings controls how vetted commands run.
type ExecutionSettings struct {
	Shell         string `yaml:"shell"`
	DefaultTarget string `yaml:"default_target"`
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Addr string `yaml:"addr"`
}

// AuditSettings configures the JSONL audit trail of interpret verdicts.
type AuditSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Target is a named remote machine reachable over SSH.
type Target struct {
	Name           string `yaml:"name" json:"name"`
	Host           string `yaml:"host" json:"host"`
	Port           int    `yaml:"port,omitempty" json:"port,omitempty"`
	User           string `yaml:"user" json:"user"`
	IdentityFile   string `yaml:"identity_file,omitempty" json:"identity_file,omitempty"`
	KnownHostsFile string `yaml:"known_hosts_file,omitempty" json:"known_hosts_file,omitempty"`
	// Proxy is an optional SOCKS5 address (host:port) used to reach Host.
	Proxy string `yaml:"proxy,omitempty" json:"proxy,omitempty"`
}
