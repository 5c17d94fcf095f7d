package flags

import (
	"strings"

	"github.com/spf13/pflag"
)

const (
	optionalValuePromptSentinelConstant = "<prompt>"
	optionalValueTypeNameConstant       = "string"
	optionalValueUsageSuffixConstant    = " (omit the value to be prompted)"
)

// OptionalValue records a string flag that may be supplied with a value or given bare to request an interactive prompt.
type OptionalValue struct {
	Value           string
	Supplied        bool
	PromptRequested bool
}

// AddOptionalValueFlag registers a flag that accepts "--name=value", "--name value", or a bare "--name".
// A bare flag marks the value as PromptRequested instead of storing a literal.
func AddOptionalValueFlag(flagSet *pflag.FlagSet, target *OptionalValue, name string, usage string) {
	if flagSet == nil || target == nil || len(name) == 0 {
		return
	}

	flagSet.Var(&optionalFlagValue{target: target}, name, strings.TrimSpace(usage)+optionalValueUsageSuffixConstant)

	flagSet.Lookup(name).NoOptDefVal = optionalValuePromptSentinelConstant
}

type optionalFlagValue struct {
	target *OptionalValue
}

func (value *optionalFlagValue) Set(rawValue string) error {
	value.target.Supplied = true
	if rawValue == optionalValuePromptSentinelConstant {
		value.target.PromptRequested = true
		value.target.Value = ""
		return nil
	}
	value.target.PromptRequested = false
	value.target.Value = rawValue
	return nil
}

func (value *optionalFlagValue) String() string {
	if value == nil || value.target == nil {
		return ""
	}
	if value.target.PromptRequested {
		return optionalValuePromptSentinelConstant
	}
	return value.target.Value
}

func (value *optionalFlagValue) Type() string {
	return optionalValueTypeNameConstant
}
