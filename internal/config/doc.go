// Package config defines the deployment settings and provides helpers to
// load, validate, save and bootstrap them in YAML format.
//
// Missing keys keep their defaults, so older files keep loading after new
// settings are added; saving a loaded file writes the new keys back.
package config
