package panel

import (
	"errors"
	"fmt"
)

const (
	entityNotFoundMessageConstant           = "panel entity not found"
	credentialsNotConfiguredMessageConstant = "panel credentials not configured: provide a secret key or a login and password"
	transportErrorTemplateConstant          = "%s request to %s failed: %v"
	panelErrorTemplateConstant              = "%s rejected by panel: error %d: %s"
	responseParseErrorTemplateConstant      = "%s response could not be parsed: %v"
	entityNotFoundTemplateConstant          = "%s found no matching %s"
	invalidInputErrorTemplateConstant       = "%s: %s"
	unexpectedHTTPStatusTemplateConstant    = "unexpected HTTP status %d"
	missingResultMessageConstant            = "response carries no result element"
	missingIdentifierMessageConstant        = "response carries no entity identifier"
	requiredValueMessageConstant            = "value required"
	panelObjectNotFoundErrorCodeConstant    = 1013
)

var (
	// ErrEntityNotFound matches lookups that returned no entity, including panel error 1013.
	ErrEntityNotFound = errors.New(entityNotFoundMessageConstant)
	// ErrCredentialsNotConfigured indicates a client built without usable authentication.
	ErrCredentialsNotConfigured = errors.New(credentialsNotConfiguredMessageConstant)
	errMissingResult            = errors.New(missingResultMessageConstant)
	errMissingIdentifier        = errors.New(missingIdentifierMessageConstant)
)

// OperationName identifies a panel call in errors and logs.
type OperationName string

// TransportError reports a request that never produced a panel response.
type TransportError struct {
	Operation OperationName
	Endpoint  string
	Cause     error
}

// Error describes the transport failure.
func (failure TransportError) Error() string {
	return fmt.Sprintf(transportErrorTemplateConstant, failure.Operation, failure.Endpoint, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure TransportError) Unwrap() error {
	return failure.Cause
}

// PanelError reports a response whose status is error.
type PanelError struct {
	Operation OperationName
	Code      int
	Text      string
}

// Error describes the panel failure.
func (failure PanelError) Error() string {
	return fmt.Sprintf(panelErrorTemplateConstant, failure.Operation, failure.Code, failure.Text)
}

// Is matches ErrEntityNotFound for the panel's object-not-found code.
func (failure PanelError) Is(target error) bool {
	return target == ErrEntityNotFound && failure.Code == panelObjectNotFoundErrorCodeConstant
}

// ResponseParseError reports a response body that is not a well-formed packet.
type ResponseParseError struct {
	Operation OperationName
	Cause     error
}

// Error describes the parse failure.
func (failure ResponseParseError) Error() string {
	return fmt.Sprintf(responseParseErrorTemplateConstant, failure.Operation, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure ResponseParseError) Unwrap() error {
	return failure.Cause
}

// EntityNotFoundError reports a successful lookup that matched nothing.
type EntityNotFoundError struct {
	Operation OperationName
	Entity    string
}

// Error describes the empty lookup.
func (failure EntityNotFoundError) Error() string {
	return fmt.Sprintf(entityNotFoundTemplateConstant, failure.Operation, failure.Entity)
}

// Is matches ErrEntityNotFound.
func (failure EntityNotFoundError) Is(target error) bool {
	return target == ErrEntityNotFound
}

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}
