// Package conf provides configuration-handling flags shared by both the
// sensor and collector binaries.
package conf

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Viper keys shared across binaries.
const (
	ConfigFile = "config"

	loggingKey = "logging"

	LogDestination = loggingKey + ".destination"
	LogEncoding    = loggingKey + ".encoding"
	LogLevel       = loggingKey + ".level"
)

// Defaults for the shared flags.
const (
	DefaultLogEncoding = "logfmt"
	DefaultLogLevel    = "info"
)

// RegisterFlags registers the flags common to every binary in this module
// (config file location, logging) on cmd's persistent flag set and binds
// them into viper.
func RegisterFlags(cmd *cobra.Command) error {
	pflags := cmd.PersistentFlags()

	pflags.StringP(ConfigFile, "c", "", "path to configuration file")

	pflags.String(LogLevel, DefaultLogLevel, "log level for the logger")
	pflags.String(LogEncoding, DefaultLogEncoding, "message encoding format for the logger (logfmt, json)")
	pflags.String(LogDestination, "", "logging destination file path (registered only; both binaries log to stdout regardless of this value)")

	return viper.BindPFlags(pflags)
}
