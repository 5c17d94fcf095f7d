package utils_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/sitemigrate/internal/utils"
)

const (
	testEnvironmentPrefixConstant       = "TESTSITEMIGRATE"
	testDocumentRootKeyConstant         = "migration.document_root"
	testDocumentRootVariableConstant    = "TESTSITEMIGRATE_MIGRATION_DOCUMENT_ROOT"
	testDefaultDocumentRootConstant     = "/var/www/vhosts"
	testEmbeddedDocumentRootConstant    = "/srv/embedded"
	testFileDocumentRootConstant        = "/srv/file"
	testEnvironmentDocumentRootConstant = "/srv/environment"
	testConfigFileNameConstant          = "config.yaml"
	testConfigurationNameConstant       = "config"
	testConfigurationTypeConstant       = "yaml"
	testDocumentRootTemplateConstant    = "migration:\n  document_root: "
	testDefaultsCaseConstant            = "defaults_only"
	testEmbeddedCaseConstant            = "embedded_over_defaults"
	testFileCaseConstant                = "file_over_embedded"
	testEnvironmentCaseConstant         = "environment_over_file"
	testWorkingDirectoryCaseConstant    = "working_directory"
	testUserDirectoryCaseConstant       = "user_configuration_directory"
)

type migrationConfigurationFixture struct {
	Migration migrationSectionFixture `mapstructure:"migration"`
}

type migrationSectionFixture struct {
	DocumentRoot     string              `mapstructure:"document_root"`
	TransferMode     transferModeFixture `mapstructure:"transfer_mode"`
	PortOverrideHost []string            `mapstructure:"port_override_hosts"`
}

type transferModeFixture string

func writeConfiguration(testInstance *testing.T, directory string, contents string) string {
	testInstance.Helper()
	require.NoError(testInstance, os.MkdirAll(directory, 0o755))
	configurationPath := filepath.Join(directory, testConfigFileNameConstant)
	require.NoError(testInstance, os.WriteFile(configurationPath, []byte(contents), 0o600))
	return configurationPath
}

func TestConfigurationLoaderLayersSources(testInstance *testing.T) {
	testCases := []struct {
		name                 string
		embeddedDocumentRoot string
		fileDocumentRoot     string
		environmentRoot      string
		expectedDocumentRoot string
		expectedOverrides    []string
	}{
		{
			name:                 testDefaultsCaseConstant,
			expectedDocumentRoot: testDefaultDocumentRootConstant,
		},
		{
			name:                 testEmbeddedCaseConstant,
			embeddedDocumentRoot: testEmbeddedDocumentRootConstant,
			expectedDocumentRoot: testEmbeddedDocumentRootConstant,
		},
		{
			name:                 testFileCaseConstant,
			embeddedDocumentRoot: testEmbeddedDocumentRootConstant,
			fileDocumentRoot:     testFileDocumentRootConstant,
			expectedDocumentRoot: testFileDocumentRootConstant,
		},
		{
			name:                 testEnvironmentCaseConstant,
			embeddedDocumentRoot: testEmbeddedDocumentRootConstant,
			fileDocumentRoot:     testFileDocumentRootConstant,
			environmentRoot:      testEnvironmentDocumentRootConstant,
			expectedDocumentRoot: testEnvironmentDocumentRootConstant,
			expectedOverrides:    []string{testDocumentRootVariableConstant},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			var options []utils.ConfigurationLoaderOption
			if len(testCase.embeddedDocumentRoot) > 0 {
				options = append(options, utils.WithEmbeddedConfiguration([]byte(testDocumentRootTemplateConstant+testCase.embeddedDocumentRoot+"\n"), testConfigurationTypeConstant))
			}
			configurationPath := ""
			if len(testCase.fileDocumentRoot) > 0 {
				configurationPath = writeConfiguration(testInstance, testInstance.TempDir(), testDocumentRootTemplateConstant+testCase.fileDocumentRoot+"\n")
			}
			if len(testCase.environmentRoot) > 0 {
				testInstance.Setenv(testDocumentRootVariableConstant, testCase.environmentRoot)
			}

			loader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, options...)
			loadedConfiguration := migrationConfigurationFixture{}
			metadata, loadError := loader.LoadConfiguration(configurationPath, map[string]any{testDocumentRootKeyConstant: testDefaultDocumentRootConstant}, &loadedConfiguration)

			require.NoError(testInstance, loadError)
			require.Equal(testInstance, testCase.expectedDocumentRoot, loadedConfiguration.Migration.DocumentRoot)
			require.Equal(testInstance, configurationPath, metadata.ConfigFileUsed)
			require.Equal(testInstance, testCase.expectedOverrides, metadata.EnvironmentOverrides)
		})
	}
}

func TestConfigurationLoaderSearchPaths(testInstance *testing.T) {
	testCases := []struct {
		name         string
		selectTarget func(workingDirectory string, userDirectory string) string
	}{
		{
			name:         testWorkingDirectoryCaseConstant,
			selectTarget: func(workingDirectory string, _ string) string { return workingDirectory },
		},
		{
			name:         testUserDirectoryCaseConstant,
			selectTarget: func(_ string, userDirectory string) string { return userDirectory },
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			workingDirectory := testInstance.TempDir()
			userDirectory := filepath.Join(testInstance.TempDir(), ".config", "sitemigrate")
			configurationPath := writeConfiguration(testInstance, testCase.selectTarget(workingDirectory, userDirectory), testDocumentRootTemplateConstant+testFileDocumentRootConstant+"\n")

			loader := utils.NewConfigurationLoader(
				testConfigurationNameConstant,
				testConfigurationTypeConstant,
				testEnvironmentPrefixConstant,
				utils.WithSearchPaths(workingDirectory, userDirectory),
			)
			loadedConfiguration := migrationConfigurationFixture{}
			metadata, loadError := loader.LoadConfiguration("", nil, &loadedConfiguration)

			require.NoError(testInstance, loadError)
			require.Equal(testInstance, testFileDocumentRootConstant, loadedConfiguration.Migration.DocumentRoot)
			require.Equal(testInstance, configurationPath, metadata.ConfigFileUsed)
		})
	}
}

func TestConfigurationLoaderMissingExplicitFileFails(testInstance *testing.T) {
	loader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant)
	loadedConfiguration := migrationConfigurationFixture{}

	_, loadError := loader.LoadConfiguration(filepath.Join(testInstance.TempDir(), "absent.yaml"), nil, &loadedConfiguration)
	require.ErrorContains(testInstance, loadError, "failed to read configuration")
}

func TestConfigurationLoaderAppliesDecodeHooks(testInstance *testing.T) {
	configurationPath := writeConfiguration(testInstance, testInstance.TempDir(), "migration:\n  transfer_mode: REFRESH\n  port_override_hosts: web3.example.com,web4.example.com\n")

	loader := utils.NewConfigurationLoader(
		testConfigurationNameConstant,
		testConfigurationTypeConstant,
		testEnvironmentPrefixConstant,
		utils.WithDecodeHooks(nil, func(sourceType reflect.Type, targetType reflect.Type, value any) (any, error) {
			if sourceType.Kind() != reflect.String || targetType != reflect.TypeOf(transferModeFixture("")) {
				return value, nil
			}
			return transferModeFixture(strings.ToLower(value.(string))), nil
		}),
	)

	loadedConfiguration := migrationConfigurationFixture{}
	_, loadError := loader.LoadConfiguration(configurationPath, nil, &loadedConfiguration)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, transferModeFixture("refresh"), loadedConfiguration.Migration.TransferMode)
	require.Equal(testInstance, []string{"web3.example.com", "web4.example.com"}, loadedConfiguration.Migration.PortOverrideHost)
}

func TestConfigurationLoaderStrictKeys(testInstance *testing.T) {
	configurationPath := writeConfiguration(testInstance, testInstance.TempDir(), "migration:\n  document_root: /srv/www\n  documentroot: /srv/typo\n")

	lenientLoader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant)
	lenientConfiguration := migrationConfigurationFixture{}
	_, lenientError := lenientLoader.LoadConfiguration(configurationPath, nil, &lenientConfiguration)
	require.NoError(testInstance, lenientError)
	require.Equal(testInstance, "/srv/www", lenientConfiguration.Migration.DocumentRoot)

	strictLoader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, utils.WithStrictKeys())
	strictConfiguration := migrationConfigurationFixture{}
	_, strictError := strictLoader.LoadConfiguration(configurationPath, nil, &strictConfiguration)
	require.ErrorContains(testInstance, strictError, "documentroot")
}
