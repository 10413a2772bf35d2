// Package config loads process settings: an optional settings file
// (yaml, json or toml) overlaid with FLOWBRIDGE_* environment variables.
// Flow documents are not settings; see package flowfile.
package config
