// Package config loads kaze settings from defaults, an optional YAML file,
// a project .env file and KAZE_* environment variables.
package config
