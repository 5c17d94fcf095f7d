package cms

import "fmt"

const (
	noAdapterDetectedMessageConstant         = "no supported CMS detected"
	credentialReadErrorTemplateConstant      = "failed to read %s credentials from %s: %v"
	credentialWriteErrorTemplateConstant     = "failed to rewrite %s credentials in %s: %v"
	missingCredentialTemplateConstant        = "%s does not declare %s"
	unsupportedValueTemplateConstant         = "%s cannot store the %s value: %s"
	declarationNotRewritableTemplateConstant = "%s declares %s as an expression that cannot be rewritten"
	unsupportedValueQuoteReasonConstant      = "it contains the enclosing quote, a backslash, or an interpolation character"
	unsupportedValueCDATAReasonConstant      = "it contains the CDATA terminator"
)

// CredentialReadError reports a configuration file that could not be read or parsed.
type CredentialReadError struct {
	Kind  Kind
	Path  string
	Cause error
}

// Error describes the read failure.
func (failure CredentialReadError) Error() string {
	return fmt.Sprintf(credentialReadErrorTemplateConstant, failure.Kind, failure.Path, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure CredentialReadError) Unwrap() error {
	return failure.Cause
}

// CredentialWriteError reports a configuration file that could not be rewritten.
type CredentialWriteError struct {
	Kind  Kind
	Path  string
	Cause error
}

// Error describes the write failure.
func (failure CredentialWriteError) Error() string {
	return fmt.Sprintf(credentialWriteErrorTemplateConstant, failure.Kind, failure.Path, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure CredentialWriteError) Unwrap() error {
	return failure.Cause
}

// MissingCredentialError reports a configuration file lacking one of the database settings.
type MissingCredentialError struct {
	Path  string
	Field string
}

// Error describes the missing field.
func (failure MissingCredentialError) Error() string {
	return fmt.Sprintf(missingCredentialTemplateConstant, failure.Path, failure.Field)
}

// UnsupportedValueError reports a replacement value that cannot be written without changing the file's syntax.
type UnsupportedValueError struct {
	Path   string
	Field  string
	Reason string
}

// Error describes the rejected value.
func (failure UnsupportedValueError) Error() string {
	return fmt.Sprintf(unsupportedValueTemplateConstant, failure.Path, failure.Field, failure.Reason)
}

// DeclarationNotRewritableError reports a setting declared through an expression rather than a literal.
type DeclarationNotRewritableError struct {
	Path  string
	Field string
}

// Error describes the declaration.
func (failure DeclarationNotRewritableError) Error() string {
	return fmt.Sprintf(declarationNotRewritableTemplateConstant, failure.Path, failure.Field)
}
