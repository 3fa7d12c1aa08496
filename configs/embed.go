// Package configs provides the embedded configuration template.
//
// The template is embedded at build time so `retrieval init` can write a
// starter config in every distribution, source builds included.
package configs

import _ "embed"

// ConfigTemplate is the starter configuration written by `retrieval init`.
//
//go:embed config.example.yaml
var ConfigTemplate string
