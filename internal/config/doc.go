// Package config handles configuration loading, parsing, and validation for
// both relay services. Settings come from environment variables and optional
// config files, and are exposed as typed structs so components never read
// the environment directly.
package config
