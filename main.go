package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/temirov/sitemigrate/cmd/cli"
	"github.com/temirov/sitemigrate/internal/migration"
)

const (
	exitErrorTemplateConstant = "%v\n"
)

// main executes the sitemigrate command-line application.
func main() {
	executionContext, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	executionError := cli.Execute(executionContext, os.Args[1:])
	stopSignals()
	if executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
		os.Exit(migration.ExitCode(executionError))
	}
}
