package migration

import (
	"context"
)

const (
	derivationCycleMessageConstant   = "derives from itself"
	promptUnavailableMessageConstant = "interactive prompt is not available"
)

// CredentialField names one resolvable plan value. Names match the command-line flags that override them.
type CredentialField string

// Resolvable fields.
const (
	FieldSourceDatabaseName          CredentialField = "source-db-name"
	FieldSourceDatabaseUser          CredentialField = "source-db-user"
	FieldSourceDatabasePassword      CredentialField = "source-db-pass"
	FieldSourceDatabaseHost          CredentialField = "source-db-host"
	FieldDestinationDatabaseName     CredentialField = "dest-db-name"
	FieldDestinationDatabaseUser     CredentialField = "dest-db-user"
	FieldDestinationDatabasePassword CredentialField = "dest-db-pass"
	FieldDestinationDatabaseHost     CredentialField = "dest-db-host"
	FieldDestinationSFTPUser         CredentialField = "dest-sftp-user"
	FieldDestinationSFTPPassword     CredentialField = "dest-sftp-pass"
	FieldDestinationSFTPSite         CredentialField = "dest-sftp-site"
	FieldSourcePanelHost             CredentialField = "source-panel-host"
	FieldSourcePanelLogin            CredentialField = "source-panel-user"
	FieldSourcePanelPassword         CredentialField = "source-panel-pass"
	FieldDestinationPanelHost        CredentialField = "dest-panel-host"
	FieldDestinationPanelLogin       CredentialField = "dest-panel-user"
	FieldDestinationPanelPassword    CredentialField = "dest-panel-pass"
	FieldDestinationPanelAddress     CredentialField = "dest-panel-ip"
)

var credentialFieldDescriptions = map[CredentialField]string{
	FieldSourceDatabaseName:          "source database name",
	FieldSourceDatabaseUser:          "source database user",
	FieldSourceDatabasePassword:      "source database password",
	FieldSourceDatabaseHost:          "source database host",
	FieldDestinationDatabaseName:     "destination database name",
	FieldDestinationDatabaseUser:     "destination database user",
	FieldDestinationDatabasePassword: "destination database password",
	FieldDestinationDatabaseHost:     "destination database host",
	FieldDestinationSFTPUser:         "customer SFTP user",
	FieldDestinationSFTPPassword:     "password for the customer SFTP account",
	FieldDestinationSFTPSite:         "destination site name",
	FieldSourcePanelHost:             "source panel host",
	FieldSourcePanelLogin:            "source panel login",
	FieldSourcePanelPassword:         "source panel password",
	FieldDestinationPanelHost:        "destination panel host",
	FieldDestinationPanelLogin:       "destination panel login",
	FieldDestinationPanelPassword:    "destination panel password",
	FieldDestinationPanelAddress:     "destination panel IP address",
}

// CredentialFields returns every resolvable field in flag order.
func CredentialFields() []CredentialField {
	return []CredentialField{
		FieldSourceDatabaseName,
		FieldSourceDatabaseUser,
		FieldSourceDatabasePassword,
		FieldSourceDatabaseHost,
		FieldDestinationDatabaseName,
		FieldDestinationDatabaseUser,
		FieldDestinationDatabasePassword,
		FieldDestinationDatabaseHost,
		FieldDestinationSFTPUser,
		FieldDestinationSFTPPassword,
		FieldDestinationSFTPSite,
		FieldSourcePanelHost,
		FieldSourcePanelLogin,
		FieldSourcePanelPassword,
		FieldDestinationPanelHost,
		FieldDestinationPanelLogin,
		FieldDestinationPanelPassword,
		FieldDestinationPanelAddress,
	}
}

// Description returns the operator-facing name of the field.
func (field CredentialField) Description() string {
	if description, known := credentialFieldDescriptions[field]; known {
		return description
	}
	return string(field)
}

// PolicyKind selects how a field is resolved.
type PolicyKind string

// Supported policy kinds.
const (
	PolicyExplicit PolicyKind = "explicit"
	PolicyDiscover PolicyKind = "discover"
	PolicyPrompt   PolicyKind = "prompt"
	PolicyDerive   PolicyKind = "derive"
)

// CredentialPolicy resolves one field. Source is the derivation origin for PolicyDerive and the fallback for PolicyDiscover.
type CredentialPolicy struct {
	Kind   PolicyKind
	Value  string
	Source CredentialField
}

// ExplicitValue uses value as given.
func ExplicitValue(value string) CredentialPolicy {
	return CredentialPolicy{Kind: PolicyExplicit, Value: value}
}

// DiscoverValue reads the field from the discovered CMS configuration, falling back to another field when discovery yields nothing.
func DiscoverValue(fallback CredentialField) CredentialPolicy {
	return CredentialPolicy{Kind: PolicyDiscover, Source: fallback}
}

// PromptForValue asks the operator.
func PromptForValue() CredentialPolicy {
	return CredentialPolicy{Kind: PolicyPrompt}
}

// DeriveFrom copies the resolved value of another field.
func DeriveFrom(source CredentialField) CredentialPolicy {
	return CredentialPolicy{Kind: PolicyDerive, Source: source}
}

// OperatorSupplied reports whether the operator provides the value directly.
func (policy CredentialPolicy) OperatorSupplied() bool {
	return policy.Kind == PolicyExplicit || policy.Kind == PolicyPrompt
}

func defaultCredentialPolicies(request Request, settings Settings, sourceHostname string) map[CredentialField]CredentialPolicy {
	policies := map[CredentialField]CredentialPolicy{
		FieldSourceDatabaseName:          DiscoverValue(""),
		FieldSourceDatabaseUser:          DiscoverValue(FieldSourceDatabaseName),
		FieldSourceDatabasePassword:      DiscoverValue(""),
		FieldSourceDatabaseHost:          DiscoverValue(""),
		FieldDestinationDatabaseName:     DeriveFrom(FieldSourceDatabaseName),
		FieldDestinationDatabaseUser:     DeriveFrom(FieldSourceDatabaseUser),
		FieldDestinationDatabasePassword: DeriveFrom(FieldSourceDatabasePassword),
		FieldDestinationDatabaseHost:     ExplicitValue(settings.DestinationDatabaseHost),
		FieldDestinationSFTPUser:         ExplicitValue(""),
		FieldDestinationSFTPPassword:     ExplicitValue(""),
		FieldDestinationSFTPSite:         ExplicitValue(request.Site),
		FieldSourcePanelHost:             ExplicitValue(sourceHostname),
		FieldSourcePanelLogin:            ExplicitValue(settings.Panel.DefaultLogin),
		FieldSourcePanelPassword:         ExplicitValue(""),
		FieldDestinationPanelHost:        ExplicitValue(request.Destination),
		FieldDestinationPanelLogin:       ExplicitValue(settings.Panel.DefaultLogin),
		FieldDestinationPanelPassword:    ExplicitValue(""),
		FieldDestinationPanelAddress:     ExplicitValue(""),
	}
	for field, policy := range request.Credentials {
		policies[field] = policy
	}
	return policies
}

// SecretPrompter asks the operator for a value without echoing it.
type SecretPrompter interface {
	PromptSecret(executionContext context.Context, label string) (string, error)
}

type credentialResolver struct {
	policies   map[CredentialField]CredentialPolicy
	discovered map[CredentialField]string
	prompter   SecretPrompter
	resolved   map[CredentialField]string
	resolving  map[CredentialField]bool
}

func newCredentialResolver(policies map[CredentialField]CredentialPolicy, prompter SecretPrompter) *credentialResolver {
	return &credentialResolver{
		policies:   policies,
		discovered: map[CredentialField]string{},
		prompter:   prompter,
		resolved:   map[CredentialField]string{},
		resolving:  map[CredentialField]bool{},
	}
}

func (resolver *credentialResolver) policy(field CredentialField) CredentialPolicy {
	return resolver.policies[field]
}

func (resolver *credentialResolver) setDiscovered(field CredentialField, value string) {
	resolver.discovered[field] = value
}

func (resolver *credentialResolver) resolve(executionContext context.Context, field CredentialField) (string, error) {
	if value, resolved := resolver.resolved[field]; resolved {
		return value, nil
	}
	if resolver.resolving[field] {
		return "", ValidationError{Field: string(field), Message: derivationCycleMessageConstant}
	}
	resolver.resolving[field] = true
	defer delete(resolver.resolving, field)

	policy := resolver.policies[field]
	var value string
	switch policy.Kind {
	case PolicyExplicit:
		value = policy.Value
	case PolicyDiscover:
		value = resolver.discovered[field]
		if len(value) == 0 && len(policy.Source) > 0 {
			fallbackValue, fallbackError := resolver.resolve(executionContext, policy.Source)
			if fallbackError != nil {
				return "", fallbackError
			}
			value = fallbackValue
		}
	case PolicyPrompt:
		if resolver.prompter == nil {
			return "", ValidationError{Field: string(field), Message: promptUnavailableMessageConstant}
		}
		promptedValue, promptError := resolver.prompter.PromptSecret(executionContext, field.Description())
		if promptError != nil {
			return "", promptError
		}
		value = promptedValue
	case PolicyDerive:
		derivedValue, deriveError := resolver.resolve(executionContext, policy.Source)
		if deriveError != nil {
			return "", deriveError
		}
		value = derivedValue
	}

	resolver.resolved[field] = value
	return value, nil
}
