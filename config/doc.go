// Package config loads server and CLI configuration from a JSON or YAML
// file, then overlays CARENEST_* environment variables.
//
//	cfg, err := config.Load("carenest.yaml")
//	if err != nil { ... }
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { ... }
package config
