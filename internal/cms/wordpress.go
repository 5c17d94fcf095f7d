package cms

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	wordPressConfigurationFileNameConstant = "wp-config.php"
	wordPressDatabaseNameKeyConstant       = "DB_NAME"
	wordPressDatabaseUserKeyConstant       = "DB_USER"
	wordPressDatabasePasswordKeyConstant   = "DB_PASSWORD"
	wordPressDatabaseHostKeyConstant       = "DB_HOST"
	wordPressSingleQuoteConstant           = "'"
	wordPressDoubleQuoteConstant           = `"`
	wordPressSingleQuotedForbiddenConstant = `'\`
	wordPressDoubleQuotedForbiddenConstant = `"\$`
)

// wordPressDefinePattern matches define('KEY', value) statements; the value is single-quoted,
// double-quoted, or a bare expression.
var wordPressDefinePattern = regexp.MustCompile(`(?im)^[ \t]*define\(\s*(?:'([^']*)'|"([^"]*)")\s*,\s*(?:'([^']*)'|"([^"]*)"|([^\s)][^)]*?))\s*\)`)

type wordPressDeclaration struct {
	value      string
	quote      string
	valueStart int
	valueEnd   int
}

// WordPressAdapter handles wp-config.php files.
type WordPressAdapter struct {
	fileSystem FileSystem
}

// NewWordPressAdapter constructs a WordPress adapter.
func NewWordPressAdapter(fileSystem FileSystem) *WordPressAdapter {
	if fileSystem == nil {
		fileSystem = OSFileSystem{}
	}
	return &WordPressAdapter{fileSystem: fileSystem}
}

// Kind reports KindWordPress.
func (adapter *WordPressAdapter) Kind() Kind {
	return KindWordPress
}

// Marker reports the wp-config.php file.
func (adapter *WordPressAdapter) Marker() Marker {
	return Marker{Name: wordPressConfigurationFileNameConstant}
}

// ConfigurationPath returns the wp-config.php path for the install root.
func (adapter *WordPressAdapter) ConfigurationPath(installRoot string) string {
	return filepath.Join(installRoot, wordPressConfigurationFileNameConstant)
}

// Detect reports whether installRoot holds a wp-config.php file.
func (adapter *WordPressAdapter) Detect(installRoot string) bool {
	return markerPresent(adapter.fileSystem, installRoot, adapter.Marker())
}

// RequiresCronMigration reports false; WordPress schedules its jobs from page loads.
func (adapter *WordPressAdapter) RequiresCronMigration() bool {
	return false
}

// ReadCredentials parses the DB_NAME, DB_USER, DB_PASSWORD, and DB_HOST definitions.
func (adapter *WordPressAdapter) ReadCredentials(installRoot string) (Credentials, error) {
	configurationPath := adapter.ConfigurationPath(installRoot)
	declarations, readError := adapter.readDeclarations(configurationPath)
	if readError != nil {
		return Credentials{}, readError
	}

	values := make(map[string]string, len(wordPressCredentialKeys))
	for _, key := range wordPressCredentialKeys {
		declaration, declared := declarations[key]
		if !declared {
			return Credentials{}, CredentialReadError{Kind: KindWordPress, Path: configurationPath, Cause: MissingCredentialError{Path: configurationPath, Field: key}}
		}
		values[key] = declaration.value
	}

	return Credentials{
		Name:     values[wordPressDatabaseNameKeyConstant],
		User:     values[wordPressDatabaseUserKeyConstant],
		Password: values[wordPressDatabasePasswordKeyConstant],
		Host:     values[wordPressDatabaseHostKeyConstant],
	}, nil
}

// RewriteCredentials replaces the literal value of every changed definition and leaves the rest of the file untouched.
func (adapter *WordPressAdapter) RewriteCredentials(installRoot string, update CredentialUpdate) error {
	configurationPath := adapter.ConfigurationPath(installRoot)
	contents, readError := adapter.fileSystem.ReadFile(configurationPath)
	if readError != nil {
		return CredentialReadError{Kind: KindWordPress, Path: configurationPath, Cause: readError}
	}
	declarations := parseWordPressDeclarations(string(contents))

	requestedValues := map[string]string{
		wordPressDatabaseNameKeyConstant:     update.Name,
		wordPressDatabaseUserKeyConstant:     update.User,
		wordPressDatabasePasswordKeyConstant: update.Password,
		wordPressDatabaseHostKeyConstant:     update.Host,
	}

	replacements := make([]textReplacement, 0, len(requestedValues))
	for _, key := range wordPressCredentialKeys {
		requestedValue := requestedValues[key]
		if len(requestedValue) == 0 {
			continue
		}
		declaration, declared := declarations[key]
		if !declared {
			return CredentialWriteError{Kind: KindWordPress, Path: configurationPath, Cause: MissingCredentialError{Path: configurationPath, Field: key}}
		}
		if declaration.value == requestedValue {
			continue
		}
		if validationError := validateWordPressValue(configurationPath, key, declaration, requestedValue); validationError != nil {
			return CredentialWriteError{Kind: KindWordPress, Path: configurationPath, Cause: validationError}
		}
		replacements = append(replacements, textReplacement{start: declaration.valueStart, end: declaration.valueEnd, value: requestedValue})
	}

	if len(replacements) == 0 {
		return nil
	}

	if writeError := adapter.fileSystem.ReplaceFile(configurationPath, []byte(applyReplacements(string(contents), replacements))); writeError != nil {
		return CredentialWriteError{Kind: KindWordPress, Path: configurationPath, Cause: writeError}
	}
	return nil
}

func (adapter *WordPressAdapter) readDeclarations(configurationPath string) (map[string]wordPressDeclaration, error) {
	contents, readError := adapter.fileSystem.ReadFile(configurationPath)
	if readError != nil {
		return nil, CredentialReadError{Kind: KindWordPress, Path: configurationPath, Cause: readError}
	}
	return parseWordPressDeclarations(string(contents)), nil
}

var wordPressCredentialKeys = []string{
	wordPressDatabaseNameKeyConstant,
	wordPressDatabaseUserKeyConstant,
	wordPressDatabasePasswordKeyConstant,
	wordPressDatabaseHostKeyConstant,
}

// parseWordPressDeclarations keeps the first definition of each key, as PHP ignores redefinitions.
func parseWordPressDeclarations(contents string) map[string]wordPressDeclaration {
	declarations := make(map[string]wordPressDeclaration)
	for _, matchIndexes := range wordPressDefinePattern.FindAllStringSubmatchIndex(contents, -1) {
		key := submatch(contents, matchIndexes, 1)
		if matchIndexes[2] < 0 {
			key = submatch(contents, matchIndexes, 2)
		}
		if _, alreadyDeclared := declarations[key]; alreadyDeclared {
			continue
		}

		var declaration wordPressDeclaration
		switch {
		case matchIndexes[6] >= 0:
			declaration = wordPressDeclaration{quote: wordPressSingleQuoteConstant, valueStart: matchIndexes[6], valueEnd: matchIndexes[7]}
		case matchIndexes[8] >= 0:
			declaration = wordPressDeclaration{quote: wordPressDoubleQuoteConstant, valueStart: matchIndexes[8], valueEnd: matchIndexes[9]}
		default:
			declaration = wordPressDeclaration{valueStart: matchIndexes[10], valueEnd: matchIndexes[11]}
		}
		declaration.value = contents[declaration.valueStart:declaration.valueEnd]
		declarations[key] = declaration
	}
	return declarations
}

func validateWordPressValue(configurationPath string, key string, declaration wordPressDeclaration, requestedValue string) error {
	switch declaration.quote {
	case wordPressSingleQuoteConstant:
		if strings.ContainsAny(requestedValue, wordPressSingleQuotedForbiddenConstant) {
			return UnsupportedValueError{Path: configurationPath, Field: key, Reason: unsupportedValueQuoteReasonConstant}
		}
	case wordPressDoubleQuoteConstant:
		if strings.ContainsAny(requestedValue, wordPressDoubleQuotedForbiddenConstant) {
			return UnsupportedValueError{Path: configurationPath, Field: key, Reason: unsupportedValueQuoteReasonConstant}
		}
	default:
		return DeclarationNotRewritableError{Path: configurationPath, Field: key}
	}
	return nil
}

func submatch(contents string, matchIndexes []int, group int) string {
	start, end := matchIndexes[2*group], matchIndexes[2*group+1]
	if start < 0 {
		return ""
	}
	return contents[start:end]
}

type textReplacement struct {
	start int
	end   int
	value string
}

// applyReplacements substitutes non-overlapping spans in a single pass.
func applyReplacements(contents string, replacements []textReplacement) string {
	sortedReplacements := append([]textReplacement{}, replacements...)
	sort.Slice(sortedReplacements, func(leftIndex int, rightIndex int) bool {
		return sortedReplacements[leftIndex].start < sortedReplacements[rightIndex].start
	})

	var builder strings.Builder
	builder.Grow(len(contents))
	cursor := 0
	for _, replacement := range sortedReplacements {
		builder.WriteString(contents[cursor:replacement.start])
		builder.WriteString(replacement.value)
		cursor = replacement.end
	}
	builder.WriteString(contents[cursor:])
	return builder.String()
}
