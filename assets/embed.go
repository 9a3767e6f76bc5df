package assets

import (
	_ "embed"
)

// DefaultRulesJSON is the keyword rule set written on first run.
//
//go:embed default_rules.json
var DefaultRulesJSON []byte
