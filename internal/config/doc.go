// Package config loads inboxlabeler settings.
//
// Values are layered: built-in defaults, then the YAML file, then
// INBOXLABELER_* environment variables. Command-line flags are applied on top by
// the cmd package.
package config
