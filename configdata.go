// Package sigdispatch holds assets embedded into the sigdemo daemon.
//
// The dispatcher itself lives in the callback, register and handler
// packages. This root package only embeds config.default.toml via
// [DefaultConfigTOML].
package sigdispatch

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml, embedded at
// build time. The daemon writes it to the data directory on first run.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
