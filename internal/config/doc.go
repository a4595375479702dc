// Package config loads the daemon configuration from a JSON or YAML file,
// overlays secrets from the environment and fills in defaults.
package config
