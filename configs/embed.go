// Package configs embeds the configuration template written by
// `splitdex config init`.
package configs

import _ "embed"

// ConfigTemplate is a commented config.ini with every key and its default.
//
//go:embed config.example.ini
var ConfigTemplate string
