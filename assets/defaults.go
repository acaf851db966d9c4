package assets

import (
	_ "embed"
)

// DefaultConfigYAML contains the embedded default configuration.
//
//go:embed defaults/config.yaml
var DefaultConfigYAML []byte

// DefaultRulesYAML is the commented template written by `shai-bridge rules init`.
//
//go:embed defaults/rules.yaml
var DefaultRulesYAML []byte
