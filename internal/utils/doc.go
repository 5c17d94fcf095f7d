// Package utils exposes reusable helpers consumed by the sitemigrate commands.
//
// ConfigurationLoader layers embedded defaults, configuration files, and
// SITEMIGRATE_ environment variables through Viper. LoggerFactory builds the
// structured diagnostic logger and the console logger used for operator output.
package utils
