// Package config loads gateway configuration from an optional YAML file,
// the host-managed environment file and the process environment.
//
// Environment variables win over the environment file, which wins over the
// YAML file. Keys are bound explicitly so flat variable names such as
// WHISPER_MODEL or CHUNK_LENGTH land on nested struct fields.
//
// # Usage
//
//	var cfg config.Gateway
//	err := config.LoadConfig("whisper-gateway", &cfg,
//	    config.WithEnvFile("/etc/whisper-gateway/environment"),
//	    config.WithEnvBindings(config.GatewayEnv))
package config
