package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/modernity/internal/flow"
)

var (
	runFiles []string
	runJSON  bool
	runTUI   bool
)

var runCmd = &cobra.Command{
	Use:   "run [request...]",
	Short: "Classify a request and run the matching branch",
	Long: `Run one request through the flow.

The request is classified as a greeting, source code or a description of
technology artefacts, then handed to the matching branch. Files given with
--file are attached as documents ahead of the request text.

Examples:
  modernity run "hello"
  modernity run "We use Java 8, Spring Boot 2.3, MySQL 5.7 and Angular 12"
  modernity run --file pom.xml --file package.json "assess this stack"
  modernity run --tui --file docker-compose.yml`,
	RunE: runRequest,
}

func init() {
	runCmd.Flags().StringArrayVarP(&runFiles, "file", "f", nil, "Attach a document (repeatable)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the result as JSON")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show live progress in a terminal UI")
}

func runRequest(cmd *cobra.Command, args []string) error {
	in, err := readInput(args, runFiles)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runTUI && !runJSON {
		return runWithTUI(ctx, in)
	}

	svc, err := buildServices(ctx, serviceOptions{})
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.engine.Run(ctx, in)
	if err != nil {
		return reportFailure(err)
	}
	if err := printResult(result, runJSON); err != nil {
		return err
	}
	if !runJSON {
		svc.printUsage()
	}
	return nil
}

// reportFailure prints a flow error with its phase and returns it.
func reportFailure(err error) error {
	var fe *flow.FlowError
	if errors.As(err, &fe) {
		printStatus("✗", fmt.Sprintf("run %s failed during %s", fe.RunID, fe.Phase), color.FgRed)
	}
	if errors.Is(err, context.Canceled) {
		printStatus("!", "cancelled", color.FgYellow)
	}
	return err
}
