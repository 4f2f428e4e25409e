package main

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/modernity/internal/flow"
	"github.com/ShayCichocki/modernity/internal/progress"
	"github.com/ShayCichocki/modernity/internal/tui"
)

type runOutcome struct {
	result *flow.Result
	err    error
}

// runWithTUI runs one request while the terminal UI shows its progress.
// The branch output is printed after the UI exits.
func runWithTUI(ctx context.Context, in flow.Input) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := progress.NewChannelSink(64)
	svc, err := buildServices(ctx, serviceOptions{sink: sink, quiet: true})
	if err != nil {
		return err
	}
	defer svc.Close()

	program, _ := tui.NewRunProgram("modernity run", cancel)

	forwarded := make(chan struct{})
	go func() {
		tui.Forward(ctx, sink.Events(), program.Send)
		close(forwarded)
	}()

	outcome := make(chan runOutcome, 1)
	go func() {
		result, err := svc.engine.Run(ctx, in)
		sink.Close()
		<-forwarded
		outcome <- runOutcome{result: result, err: err}
		program.Send(tui.DoneMsg{Err: err})
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-outcome
		return fmt.Errorf("TUI error: %w", err)
	}

	out := <-outcome
	if out.err != nil {
		return reportFailure(out.err)
	}
	if dropped := sink.DroppedCount(); dropped > 0 {
		svc.logger.Sugar().Debugf("dropped %d progress events", dropped)
	}
	if err := printResult(out.result, false); err != nil {
		return err
	}
	svc.printUsage()
	return nil
}
