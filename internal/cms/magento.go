package cms

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	magentoApplicationDirectoryNameConstant   = "app"
	magentoConfigurationDirectoryNameConstant = "etc"
	magentoConfigurationRelativePathConstant  = "app/etc/local.xml"
	magentoHostElementConstant                = "host"
	magentoUserElementConstant                = "username"
	magentoPasswordElementConstant            = "password"
	magentoDatabaseNameElementConstant        = "dbname"
	magentoDefaultSetupOpenTagConstant        = "<default_setup>"
	magentoDefaultSetupCloseTagConstant       = "</default_setup>"
	magentoCDATATerminatorConstant            = "]]>"
	magentoElementPatternTemplateConstant     = `(?s)<%[1]s>\s*(?:<!\[CDATA\[(.*?)\]\]>|([^<]*?))\s*</%[1]s>`
)

type magentoLocalConfiguration struct {
	XMLName    xml.Name          `xml:"config"`
	Connection magentoConnection `xml:"global>resources>default_setup>connection"`
}

type magentoConnection struct {
	Host         string `xml:"host"`
	Username     string `xml:"username"`
	Password     string `xml:"password"`
	DatabaseName string `xml:"dbname"`
}

var magentoCredentialElements = []string{
	magentoDatabaseNameElementConstant,
	magentoUserElementConstant,
	magentoPasswordElementConstant,
	magentoHostElementConstant,
}

var magentoElementPatterns = buildMagentoElementPatterns()

var magentoConfigurationMarker = Marker{Name: magentoConfigurationDirectoryNameConstant, Directory: true}

// MagentoAdapter handles Magento 1 app/etc/local.xml files. The install root is the directory containing app.
type MagentoAdapter struct {
	fileSystem FileSystem
}

// NewMagentoAdapter constructs a Magento adapter.
func NewMagentoAdapter(fileSystem FileSystem) *MagentoAdapter {
	if fileSystem == nil {
		fileSystem = OSFileSystem{}
	}
	return &MagentoAdapter{fileSystem: fileSystem}
}

// Kind reports KindMagento.
func (adapter *MagentoAdapter) Kind() Kind {
	return KindMagento
}

// Marker reports the app directory.
func (adapter *MagentoAdapter) Marker() Marker {
	return Marker{Name: magentoApplicationDirectoryNameConstant, Directory: true}
}

// ConfigurationPath returns the local.xml path for the install root.
func (adapter *MagentoAdapter) ConfigurationPath(installRoot string) string {
	return filepath.Join(installRoot, filepath.FromSlash(magentoConfigurationRelativePathConstant))
}

// Detect reports whether installRoot holds an app directory with the app/etc configuration directory.
func (adapter *MagentoAdapter) Detect(installRoot string) bool {
	return markerPresent(adapter.fileSystem, filepath.Join(installRoot, magentoApplicationDirectoryNameConstant), magentoConfigurationMarker)
}

// RequiresCronMigration reports true; Magento relies on cron for indexing and mail.
func (adapter *MagentoAdapter) RequiresCronMigration() bool {
	return true
}

// ReadCredentials decodes the default_setup connection block.
func (adapter *MagentoAdapter) ReadCredentials(installRoot string) (Credentials, error) {
	configurationPath := adapter.ConfigurationPath(installRoot)
	contents, readError := adapter.fileSystem.ReadFile(configurationPath)
	if readError != nil {
		return Credentials{}, CredentialReadError{Kind: KindMagento, Path: configurationPath, Cause: readError}
	}

	var configuration magentoLocalConfiguration
	if decodeError := xml.NewDecoder(bytes.NewReader(contents)).Decode(&configuration); decodeError != nil {
		return Credentials{}, CredentialReadError{Kind: KindMagento, Path: configurationPath, Cause: decodeError}
	}

	credentials := Credentials{
		Name:     strings.TrimSpace(configuration.Connection.DatabaseName),
		User:     strings.TrimSpace(configuration.Connection.Username),
		Password: strings.TrimSpace(configuration.Connection.Password),
		Host:     strings.TrimSpace(configuration.Connection.Host),
	}
	if len(credentials.Name) == 0 {
		return Credentials{}, CredentialReadError{Kind: KindMagento, Path: configurationPath, Cause: MissingCredentialError{Path: configurationPath, Field: magentoDatabaseNameElementConstant}}
	}
	if len(credentials.Host) == 0 {
		return Credentials{}, CredentialReadError{Kind: KindMagento, Path: configurationPath, Cause: MissingCredentialError{Path: configurationPath, Field: magentoHostElementConstant}}
	}
	return credentials, nil
}

// RewriteCredentials replaces the text of every changed connection element inside default_setup.
func (adapter *MagentoAdapter) RewriteCredentials(installRoot string, update CredentialUpdate) error {
	configurationPath := adapter.ConfigurationPath(installRoot)
	contents, readError := adapter.fileSystem.ReadFile(configurationPath)
	if readError != nil {
		return CredentialReadError{Kind: KindMagento, Path: configurationPath, Cause: readError}
	}
	text := string(contents)

	sectionStart, sectionEnd := magentoDefaultSetupSection(text)
	section := text[sectionStart:sectionEnd]

	requestedValues := map[string]string{
		magentoDatabaseNameElementConstant: update.Name,
		magentoUserElementConstant:         update.User,
		magentoPasswordElementConstant:     update.Password,
		magentoHostElementConstant:         update.Host,
	}

	replacements := make([]textReplacement, 0, len(requestedValues))
	for _, element := range magentoCredentialElements {
		requestedValue := requestedValues[element]
		if len(requestedValue) == 0 {
			continue
		}

		matchIndexes := magentoElementPatterns[element].FindStringSubmatchIndex(section)
		if matchIndexes == nil {
			return CredentialWriteError{Kind: KindMagento, Path: configurationPath, Cause: MissingCredentialError{Path: configurationPath, Field: element}}
		}

		var replacement textReplacement
		var currentValue string
		if matchIndexes[2] >= 0 {
			if strings.Contains(requestedValue, magentoCDATATerminatorConstant) {
				return CredentialWriteError{Kind: KindMagento, Path: configurationPath, Cause: UnsupportedValueError{Path: configurationPath, Field: element, Reason: unsupportedValueCDATAReasonConstant}}
			}
			currentValue = section[matchIndexes[2]:matchIndexes[3]]
			replacement = textReplacement{start: sectionStart + matchIndexes[2], end: sectionStart + matchIndexes[3], value: requestedValue}
		} else {
			currentValue = section[matchIndexes[4]:matchIndexes[5]]
			var escapedValue bytes.Buffer
			if escapeError := xml.EscapeText(&escapedValue, []byte(requestedValue)); escapeError != nil {
				return CredentialWriteError{Kind: KindMagento, Path: configurationPath, Cause: escapeError}
			}
			if currentValue == escapedValue.String() {
				continue
			}
			replacement = textReplacement{start: sectionStart + matchIndexes[4], end: sectionStart + matchIndexes[5], value: escapedValue.String()}
		}

		if currentValue == requestedValue {
			continue
		}
		replacements = append(replacements, replacement)
	}

	if len(replacements) == 0 {
		return nil
	}

	if writeError := adapter.fileSystem.ReplaceFile(configurationPath, []byte(applyReplacements(text, replacements))); writeError != nil {
		return CredentialWriteError{Kind: KindMagento, Path: configurationPath, Cause: writeError}
	}
	return nil
}

// magentoDefaultSetupSection bounds the default_setup block, or the whole document when it is absent.
func magentoDefaultSetupSection(text string) (int, int) {
	openIndex := strings.Index(text, magentoDefaultSetupOpenTagConstant)
	if openIndex < 0 {
		return 0, len(text)
	}
	closeOffset := strings.Index(text[openIndex:], magentoDefaultSetupCloseTagConstant)
	if closeOffset < 0 {
		return openIndex, len(text)
	}
	return openIndex, openIndex + closeOffset
}

func buildMagentoElementPatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(magentoCredentialElements))
	for _, element := range magentoCredentialElements {
		patterns[element] = regexp.MustCompile(fmt.Sprintf(magentoElementPatternTemplateConstant, regexp.QuoteMeta(element)))
	}
	return patterns
}
