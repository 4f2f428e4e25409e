package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/modernity/internal/watch"
)

var (
	watchFiles    []string
	watchDebounce time.Duration
	watchJSON     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch --file <path> [request...]",
	Short: "Re-run a request whenever its documents change",
	Long: `Run a request once, then again each time one of its documents is saved.

Useful while editing a stack description or dependency manifest:

  modernity watch --file stack.md "assess this stack"

Press Ctrl+C to stop.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringArrayVarP(&watchFiles, "file", "f", nil, "Document to attach and watch (repeatable, required)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before re-running")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Print results as JSON")
	_ = watchCmd.MarkFlagRequired("file")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, serviceOptions{})
	if err != nil {
		return err
	}
	defer svc.Close()

	w, err := watch.New(watchFiles, watchDebounce, svc.logger.Named("watch"))
	if err != nil {
		return err
	}

	runOnce := func(ctx context.Context) {
		in, err := readInput(args, watchFiles)
		if err != nil {
			printStatus("✗", err.Error(), color.FgRed)
			return
		}
		result, err := svc.engine.Run(ctx, in)
		if err != nil {
			if ctx.Err() == nil {
				_ = reportFailure(err)
				svc.logger.Warn("run failed", zap.Error(err))
			}
			return
		}
		if err := printResult(result, watchJSON); err != nil {
			printStatus("✗", err.Error(), color.FgRed)
		}
	}

	runOnce(ctx)
	printStatus("●", fmt.Sprintf("watching %s", strings.Join(watchFiles, ", ")), color.FgCyan)

	return w.Run(ctx, func(ctx context.Context, changed []string) {
		printStatus("↻", fmt.Sprintf("changed: %s", strings.Join(changed, ", ")), color.FgCyan)
		runOnce(ctx)
	})
}
