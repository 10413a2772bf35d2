// Package app contains the core application logic. It builds every
// long-lived dependency from the loaded settings (logger, registry, result
// store, hooks, executor) and drives the two entry points, running one
// flow file and serving the remote executor API, decoupled from the CLI.
package app
