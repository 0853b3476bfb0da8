// Package config loads, normalizes, and validates krill configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob
// the batch orchestrator and CLI need, so retention, retry, and verification
// policy live in one explicit struct instead of ambient environment state.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
