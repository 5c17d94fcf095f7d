package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	configurationKeySeparatorConstant           = "."
	environmentKeySeparatorConstant             = "_"
	listValueSeparatorConstant                  = ","
	configurationReadErrorTemplateConstant      = "failed to read configuration: %w"
	configurationUnmarshalErrorTemplateConstant = "failed to parse configuration: %w"
	embeddedConfigurationMergeTemplateConstant  = "failed to merge embedded configuration: %w"
)

// ConfigurationLoader layers embedded defaults, an optional configuration file, and prefixed environment variables.
type ConfigurationLoader struct {
	configurationName string
	configurationType string
	environmentPrefix string
	searchPaths       []string
	embeddedData      []byte
	embeddedType      string
	decodeHooks       []mapstructure.DecodeHookFunc
	strictKeys        bool
}

// ConfigurationLoaderOption customizes a ConfigurationLoader.
type ConfigurationLoaderOption func(*ConfigurationLoader)

// WithSearchPaths lists the directories searched when no explicit configuration file is given.
func WithSearchPaths(searchPaths ...string) ConfigurationLoaderOption {
	return func(loader *ConfigurationLoader) {
		loader.searchPaths = append(loader.searchPaths, searchPaths...)
	}
}

// WithEmbeddedConfiguration merges the provided document beneath every other source.
func WithEmbeddedConfiguration(configurationData []byte, configurationType string) ConfigurationLoaderOption {
	return func(loader *ConfigurationLoader) {
		loader.embeddedData = append([]byte(nil), configurationData...)
		loader.embeddedType = strings.TrimSpace(configurationType)
	}
}

// WithDecodeHooks appends mapstructure hooks applied after the duration and list conversions.
func WithDecodeHooks(hooks ...mapstructure.DecodeHookFunc) ConfigurationLoaderOption {
	return func(loader *ConfigurationLoader) {
		for _, hook := range hooks {
			if hook != nil {
				loader.decodeHooks = append(loader.decodeHooks, hook)
			}
		}
	}
}

// WithStrictKeys rejects configuration keys that do not map onto the target structure.
func WithStrictKeys() ConfigurationLoaderOption {
	return func(loader *ConfigurationLoader) {
		loader.strictKeys = true
	}
}

// LoadedConfiguration reports where the resolved values came from.
type LoadedConfiguration struct {
	ConfigFileUsed       string
	EnvironmentOverrides []string
}

// NewConfigurationLoader creates a loader for the named configuration and environment prefix.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, options ...ConfigurationLoaderOption) *ConfigurationLoader {
	loader := &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: configurationType,
		environmentPrefix: environmentPrefix,
	}
	for _, option := range options {
		if option != nil {
			option(loader)
		}
	}
	return loader
}

// LoadConfiguration decodes the layered configuration into targetConfiguration.
// Precedence from lowest to highest: defaultValues, embedded document, configuration file, environment.
// An explicit configurationFilePath must exist; a missing file in the search paths is not an error.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, targetConfiguration any) (LoadedConfiguration, error) {
	environmentKeyReplacer := strings.NewReplacer(configurationKeySeparatorConstant, environmentKeySeparatorConstant)
	viperInstance := viper.New()
	viperInstance.SetConfigName(loader.configurationName)
	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	viperInstance.SetEnvKeyReplacer(environmentKeyReplacer)
	viperInstance.AutomaticEnv()

	for defaultKey, defaultValue := range defaultValues {
		viperInstance.SetDefault(defaultKey, defaultValue)
	}

	if len(loader.embeddedData) > 0 {
		viperInstance.SetConfigType(loader.embeddedTypeOrDefault())
		if mergeError := viperInstance.MergeConfig(bytes.NewReader(loader.embeddedData)); mergeError != nil {
			return LoadedConfiguration{}, fmt.Errorf(embeddedConfigurationMergeTemplateConstant, mergeError)
		}
	}

	viperInstance.SetConfigType(loader.configurationType)
	if len(configurationFilePath) > 0 {
		viperInstance.SetConfigFile(configurationFilePath)
	}
	for _, searchPath := range loader.searchPaths {
		viperInstance.AddConfigPath(searchPath)
	}

	if readError := viperInstance.MergeInConfig(); readError != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(readError, &notFoundError) {
			return LoadedConfiguration{}, fmt.Errorf(configurationReadErrorTemplateConstant, readError)
		}
	}

	decoderOptions := []viper.DecoderConfigOption{viper.DecodeHook(loader.composeDecodeHooks())}
	if loader.strictKeys {
		decoderOptions = append(decoderOptions, func(decoderConfiguration *mapstructure.DecoderConfig) {
			decoderConfiguration.ErrorUnused = true
		})
	}
	if unmarshalError := viperInstance.Unmarshal(targetConfiguration, decoderOptions...); unmarshalError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationUnmarshalErrorTemplateConstant, unmarshalError)
	}

	return LoadedConfiguration{
		ConfigFileUsed:       viperInstance.ConfigFileUsed(),
		EnvironmentOverrides: loader.environmentOverrides(viperInstance.AllKeys(), environmentKeyReplacer),
	}, nil
}

func (loader *ConfigurationLoader) embeddedTypeOrDefault() string {
	if len(loader.embeddedType) > 0 {
		return loader.embeddedType
	}
	return loader.configurationType
}

// environmentOverrides names the environment variables that supplied a value for a known key.
func (loader *ConfigurationLoader) environmentOverrides(keys []string, replacer *strings.Replacer) []string {
	var overrides []string
	for _, key := range keys {
		variableName := strings.ToUpper(loader.environmentPrefix + environmentKeySeparatorConstant + replacer.Replace(key))
		if _, present := os.LookupEnv(variableName); present {
			overrides = append(overrides, variableName)
		}
	}
	sort.Strings(overrides)
	return overrides
}

func (loader *ConfigurationLoader) composeDecodeHooks() mapstructure.DecodeHookFunc {
	hooks := []mapstructure.DecodeHookFunc{
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(listValueSeparatorConstant),
	}
	return mapstructure.ComposeDecodeHookFunc(append(hooks, loader.decodeHooks...)...)
}
