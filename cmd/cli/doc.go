// Package cli constructs the sitemigrate command-line interface, wiring the
// Cobra command hierarchy, the layered configuration loader (embedded
// defaults, configuration file, SITEMIGRATE_* environment variables), and the
// structured and console loggers shared by the migrate command.
package cli
