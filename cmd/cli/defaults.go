package cli

import (
	_ "embed"

	"github.com/temirov/sitemigrate/internal/migration"
	"github.com/temirov/sitemigrate/internal/utils"
)

//go:embed default_config.yaml
var defaultConfigurationDocument []byte

// defaultConfigurationValues mirrors default_config.yaml so keys stay addressable by SITEMIGRATE_* variables
// even when the embedded document omits them.
func defaultConfigurationValues() map[string]any {
	values := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatStructured),
	}
	for key, value := range migration.DefaultConfigurationValues(migrationConfigurationKeyConstant) {
		values[key] = value
	}
	return values
}
