// Package flags provides pflag value types and argument normalization for the sitemigrate commands.
package flags

import (
	"github.com/spf13/pflag"
)

const (
	assumeYesFlagName      = "yes"
	assumeYesFlagShorthand = "y"
	assumeYesFlagUsage     = "Acknowledge manual checkpoints automatically"
	verboseFlagName        = "verbose"
	verboseFlagShorthand   = "v"
	verboseFlagUsage       = "Explain each step, print pipelines and panel packets"
)

// ExecutionFlags holds the operator-interaction switches of a command that pauses at checkpoints.
type ExecutionFlags struct {
	AssumeYes bool
	Verbose   bool
}

// BindExecutionFlags registers --yes/-y and --verbose/-v as toggles and returns the values they fill.
func BindExecutionFlags(flagSet *pflag.FlagSet) *ExecutionFlags {
	executionFlags := &ExecutionFlags{}
	AddToggleFlag(flagSet, &executionFlags.AssumeYes, assumeYesFlagName, assumeYesFlagShorthand, false, assumeYesFlagUsage)
	AddToggleFlag(flagSet, &executionFlags.Verbose, verboseFlagName, verboseFlagShorthand, false, verboseFlagUsage)
	return executionFlags
}
