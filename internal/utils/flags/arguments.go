package flags

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	longFlagPrefixConstant     = "--"
	shortFlagPrefixConstant    = "-"
	flagValueSeparator         = "="
	argumentTerminatorConstant = "--"
)

type valueFlagKind int

const (
	plainFlagKind valueFlagKind = iota
	toggleFlagKind
	optionalFlagKind
)

// NormalizeArguments joins "--flag value" into "--flag=value" for the toggle and optional-value flags
// declared anywhere in the command tree. pflag would otherwise treat the value as a positional argument
// because both kinds allow the flag to be given bare.
// A toggle only absorbs a following yes/no literal, so "--db example.com" keeps the site positional.
// An optional-value flag absorbs any following argument that does not start with a dash.
func NormalizeArguments(rootCommand *cobra.Command, arguments []string) []string {
	if len(arguments) == 0 {
		return nil
	}

	flagSets := collectFlagSets(rootCommand)
	normalized := make([]string, 0, len(arguments))
	for index := 0; index < len(arguments); index++ {
		current := arguments[index]
		if current == argumentTerminatorConstant {
			return append(normalized, arguments[index:]...)
		}

		kind := classifyArgument(flagSets, current)
		if kind == plainFlagKind || strings.Contains(current, flagValueSeparator) || index+1 >= len(arguments) {
			normalized = append(normalized, current)
			continue
		}

		next := arguments[index+1]
		absorb := !strings.HasPrefix(next, shortFlagPrefixConstant)
		if kind == toggleFlagKind {
			absorb = absorb && isToggleLiteral(next)
		}
		if !absorb {
			normalized = append(normalized, current)
			continue
		}
		normalized = append(normalized, current+flagValueSeparator+next)
		index++
	}
	return normalized
}

func collectFlagSets(command *cobra.Command) []*pflag.FlagSet {
	if command == nil {
		return nil
	}
	flagSets := []*pflag.FlagSet{command.Flags(), command.PersistentFlags()}
	for _, subcommand := range command.Commands() {
		flagSets = append(flagSets, collectFlagSets(subcommand)...)
	}
	return flagSets
}

// classifyArgument resolves a bare "--name" or single-letter "-n" through each flag set, honouring its normalize func.
func classifyArgument(flagSets []*pflag.FlagSet, argument string) valueFlagKind {
	var name string
	shorthand := false
	switch {
	case strings.HasPrefix(argument, longFlagPrefixConstant):
		name = strings.TrimPrefix(argument, longFlagPrefixConstant)
	case strings.HasPrefix(argument, shortFlagPrefixConstant) && len(argument) == 2:
		name = argument[1:]
		shorthand = true
	default:
		return plainFlagKind
	}
	if len(name) == 0 || strings.Contains(name, flagValueSeparator) {
		return plainFlagKind
	}

	for _, flagSet := range flagSets {
		var flag *pflag.Flag
		if shorthand {
			flag = flagSet.ShorthandLookup(name)
		} else {
			flag = flagSet.Lookup(name)
		}
		if flag == nil {
			continue
		}
		switch flag.Value.(type) {
		case *toggleFlagValue:
			return toggleFlagKind
		case *optionalFlagValue:
			if !shorthand {
				return optionalFlagKind
			}
		}
	}
	return plainFlagKind
}
