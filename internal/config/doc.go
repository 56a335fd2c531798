// Package config loads runtime configuration from multiple sources (YAML files,
// environment variables, CLI flags) with precedence: CLI flags > Environment
// variables > YAML config > Defaults. The YAML layer is merged onto the defaults
// so a file only needs the settings it changes.
package config
