package migration

import (
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/temirov/sitemigrate/internal/panel"
)

const (
	defaultDocumentRootConstant            = "/var/www/vhosts"
	defaultDestinationDatabaseHostConstant = "localhost"
	defaultTimezoneRewriteFromConstant     = "+00:00"
	defaultTimezoneRewriteToConstant       = "+06:00"
	defaultCompressionLevelConstant        = 4
	maximumCompressionLevelConstant        = 9
	defaultPanelLoginConstant              = "admin"
	defaultPreflightTimeoutConstant        = 30 * time.Second
	defaultSSHPortConstant                 = 22

	documentRootKeyConstant             = ".document_root"
	destinationDatabaseHostKeyConstant  = ".destination_database_host"
	timezoneRewriteFromKeyConstant      = ".timezone_rewrite.from"
	timezoneRewriteToKeyConstant        = ".timezone_rewrite.to"
	progressMeterKeyConstant            = ".progress_meter"
	compressionLevelKeyConstant         = ".compression_level"
	chrootShellKeyConstant              = ".chroot_shell"
	customerEmailKeyConstant            = ".customer_email"
	hostingPlanKeyConstant              = ".hosting_plan"
	reportPathKeyConstant               = ".report_path"
	transferModeKeyConstant             = ".transfer_mode"
	preflightEnabledKeyConstant         = ".preflight.enabled"
	preflightTimeoutKeyConstant         = ".preflight.timeout"
	preflightSSHPortKeyConstant         = ".preflight.ssh_port"
	preflightKnownHostsKeyConstant      = ".preflight.known_hosts_path"
	preflightInsecureHostKeyKeyConstant = ".preflight.insecure_ignore_host_key"
	panelProtocolKeyConstant            = ".panel.protocol"
	panelPortKeyConstant                = ".panel.port"
	panelInsecureSkipVerifyKeyConstant  = ".panel.insecure_skip_verify"
	panelDefaultLoginKeyConstant        = ".panel.default_login"
	panelInventoryDataSourceKeyConstant = ".panel.inventory.dsn"
	panelInventoryKeyKeyConstant        = ".panel.inventory.key"
)

// Settings is the persisted configuration of the migrate command.
type Settings struct {
	DocumentRoot            string            `mapstructure:"document_root"`
	DestinationDatabaseHost string            `mapstructure:"destination_database_host"`
	TimezoneRewrite         TimezoneRewrite   `mapstructure:"timezone_rewrite"`
	ProgressMeter           bool              `mapstructure:"progress_meter"`
	CompressionLevel        int               `mapstructure:"compression_level"`
	ChrootShell             string            `mapstructure:"chroot_shell"`
	CustomerEmail           string            `mapstructure:"customer_email"`
	HostingPlan             string            `mapstructure:"hosting_plan"`
	ReportPath              string            `mapstructure:"report_path"`
	TransferMode            TransferMode      `mapstructure:"transfer_mode"`
	Preflight               PreflightSettings `mapstructure:"preflight"`
	Panel                   PanelSettings     `mapstructure:"panel"`
}

// TimezoneRewrite replaces the session time zone recorded in a dump. An empty From disables the rewrite.
type TimezoneRewrite struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

// PreflightSettings controls connectivity checks run before transfers.
type PreflightSettings struct {
	Enabled               bool          `mapstructure:"enabled"`
	Timeout               time.Duration `mapstructure:"timeout"`
	SSHPort               int           `mapstructure:"ssh_port"`
	KnownHostsPath        string        `mapstructure:"known_hosts_path"`
	InsecureIgnoreHostKey bool          `mapstructure:"insecure_ignore_host_key"`
}

// PanelSettings controls how panel APIs are reached.
type PanelSettings struct {
	Protocol           string            `mapstructure:"protocol"`
	Port               int               `mapstructure:"port"`
	InsecureSkipVerify bool              `mapstructure:"insecure_skip_verify"`
	DefaultLogin       string            `mapstructure:"default_login"`
	PortOverrides      []PortOverride    `mapstructure:"port_overrides"`
	Inventory          InventorySettings `mapstructure:"inventory"`
}

// PortOverride selects the destination panel port used when migrating away from SourceHost.
type PortOverride struct {
	SourceHost string `mapstructure:"source_host"`
	Port       int    `mapstructure:"port"`
}

// InventorySettings locates the panel inventory database. An empty DSN disables inventory lookups.
type InventorySettings struct {
	DataSourceName string `mapstructure:"dsn"`
	Key            string `mapstructure:"key"`
}

// DefaultSettings returns baseline settings.
func DefaultSettings() Settings {
	return Settings{
		DocumentRoot:            defaultDocumentRootConstant,
		DestinationDatabaseHost: defaultDestinationDatabaseHostConstant,
		TimezoneRewrite:         TimezoneRewrite{From: defaultTimezoneRewriteFromConstant, To: defaultTimezoneRewriteToConstant},
		ProgressMeter:           true,
		CompressionLevel:        defaultCompressionLevelConstant,
		ChrootShell:             panel.ChrootShell,
		HostingPlan:             panel.DefaultPlanName,
		TransferMode:            TransferModeFull,
		Preflight: PreflightSettings{
			Timeout: defaultPreflightTimeoutConstant,
			SSHPort: defaultSSHPortConstant,
		},
		Panel: PanelSettings{
			Protocol:     string(panel.ProtocolHTTPS),
			Port:         panel.DefaultPort,
			DefaultLogin: defaultPanelLoginConstant,
		},
	}
}

// DefaultConfigurationValues returns Viper defaults rooted at prefix.
func DefaultConfigurationValues(prefix string) map[string]any {
	defaults := DefaultSettings()
	return map[string]any{
		prefix + documentRootKeyConstant:             defaults.DocumentRoot,
		prefix + destinationDatabaseHostKeyConstant:  defaults.DestinationDatabaseHost,
		prefix + timezoneRewriteFromKeyConstant:      defaults.TimezoneRewrite.From,
		prefix + timezoneRewriteToKeyConstant:        defaults.TimezoneRewrite.To,
		prefix + progressMeterKeyConstant:            defaults.ProgressMeter,
		prefix + compressionLevelKeyConstant:         defaults.CompressionLevel,
		prefix + chrootShellKeyConstant:              defaults.ChrootShell,
		prefix + customerEmailKeyConstant:            defaults.CustomerEmail,
		prefix + hostingPlanKeyConstant:              defaults.HostingPlan,
		prefix + reportPathKeyConstant:               defaults.ReportPath,
		prefix + transferModeKeyConstant:             string(defaults.TransferMode),
		prefix + preflightEnabledKeyConstant:         defaults.Preflight.Enabled,
		prefix + preflightTimeoutKeyConstant:         defaults.Preflight.Timeout.String(),
		prefix + preflightSSHPortKeyConstant:         defaults.Preflight.SSHPort,
		prefix + preflightKnownHostsKeyConstant:      defaults.Preflight.KnownHostsPath,
		prefix + preflightInsecureHostKeyKeyConstant: defaults.Preflight.InsecureIgnoreHostKey,
		prefix + panelProtocolKeyConstant:            defaults.Panel.Protocol,
		prefix + panelPortKeyConstant:                defaults.Panel.Port,
		prefix + panelInsecureSkipVerifyKeyConstant:  defaults.Panel.InsecureSkipVerify,
		prefix + panelDefaultLoginKeyConstant:        defaults.Panel.DefaultLogin,
		prefix + panelInventoryDataSourceKeyConstant: defaults.Panel.Inventory.DataSourceName,
		prefix + panelInventoryKeyKeyConstant:        defaults.Panel.Inventory.Key,
	}
}

// Sanitize trims values and restores defaults for empty or out-of-range entries.
func (settings Settings) Sanitize() Settings {
	defaults := DefaultSettings()
	sanitized := settings

	sanitized.DocumentRoot = strings.TrimSpace(settings.DocumentRoot)
	if len(sanitized.DocumentRoot) == 0 {
		sanitized.DocumentRoot = defaults.DocumentRoot
	}
	sanitized.DocumentRoot = filepath.Clean(sanitized.DocumentRoot)
	sanitized.DestinationDatabaseHost = strings.TrimSpace(settings.DestinationDatabaseHost)
	sanitized.TimezoneRewrite.From = strings.TrimSpace(settings.TimezoneRewrite.From)
	sanitized.TimezoneRewrite.To = strings.TrimSpace(settings.TimezoneRewrite.To)
	if settings.CompressionLevel < 0 || settings.CompressionLevel > maximumCompressionLevelConstant {
		sanitized.CompressionLevel = defaults.CompressionLevel
	}
	sanitized.ChrootShell = strings.TrimSpace(settings.ChrootShell)
	if len(sanitized.ChrootShell) == 0 {
		sanitized.ChrootShell = defaults.ChrootShell
	}
	sanitized.CustomerEmail = strings.TrimSpace(settings.CustomerEmail)
	sanitized.HostingPlan = strings.TrimSpace(settings.HostingPlan)
	if len(sanitized.HostingPlan) == 0 {
		sanitized.HostingPlan = defaults.HostingPlan
	}
	sanitized.ReportPath = strings.TrimSpace(settings.ReportPath)
	if transferMode, parseError := ParseTransferMode(string(settings.TransferMode)); parseError == nil {
		sanitized.TransferMode = transferMode
	} else {
		sanitized.TransferMode = defaults.TransferMode
	}

	if settings.Preflight.Timeout <= 0 {
		sanitized.Preflight.Timeout = defaults.Preflight.Timeout
	}
	if settings.Preflight.SSHPort <= 0 {
		sanitized.Preflight.SSHPort = defaults.Preflight.SSHPort
	}
	sanitized.Preflight.KnownHostsPath = strings.TrimSpace(settings.Preflight.KnownHostsPath)

	sanitized.Panel.Protocol = strings.ToLower(strings.TrimSpace(settings.Panel.Protocol))
	if sanitized.Panel.Protocol != string(panel.ProtocolHTTP) {
		sanitized.Panel.Protocol = defaults.Panel.Protocol
	}
	if settings.Panel.Port <= 0 {
		sanitized.Panel.Port = defaults.Panel.Port
	}
	sanitized.Panel.DefaultLogin = strings.TrimSpace(settings.Panel.DefaultLogin)
	if len(sanitized.Panel.DefaultLogin) == 0 {
		sanitized.Panel.DefaultLogin = defaults.Panel.DefaultLogin
	}
	sanitized.Panel.PortOverrides = nil
	for _, override := range settings.Panel.PortOverrides {
		trimmedHost := strings.TrimSpace(override.SourceHost)
		if len(trimmedHost) == 0 || override.Port <= 0 {
			continue
		}
		sanitized.Panel.PortOverrides = append(sanitized.Panel.PortOverrides, PortOverride{SourceHost: trimmedHost, Port: override.Port})
	}
	sanitized.Panel.Inventory.DataSourceName = strings.TrimSpace(settings.Panel.Inventory.DataSourceName)
	sanitized.Panel.Inventory.Key = strings.TrimSpace(settings.Panel.Inventory.Key)

	return sanitized
}

// DestinationPanelPort returns the destination panel port, honouring overrides keyed by the source host.
func (settings Settings) DestinationPanelPort(sourceHost string) int {
	for _, override := range settings.Panel.PortOverrides {
		if strings.EqualFold(override.SourceHost, sourceHost) {
			return override.Port
		}
	}
	return settings.Panel.Port
}

// TransferModeDecodeHook decodes and validates transfer modes in configuration files.
func TransferModeDecodeHook() mapstructure.DecodeHookFuncType {
	transferModeType := reflect.TypeOf(TransferMode(""))
	return func(sourceType reflect.Type, targetType reflect.Type, data any) (any, error) {
		if targetType != transferModeType || sourceType.Kind() != reflect.String {
			return data, nil
		}
		return ParseTransferMode(reflect.ValueOf(data).String())
	}
}
