package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/application/usecase"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
)

// errRunFailed возвращается, когда ни одна цель не измерена успешно
var errRunFailed = errors.New("measurement run totally failed")

func newMeasureCommand() *cobra.Command {
	var network string

	cmd := &cobra.Command{
		Use:   "measure",
		Short: "Measure every active target once and print the run summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := valueobject.ParseNetworkFilter(network)
			if err != nil {
				return err
			}
			return runMeasure(cmd.Context(), filter, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&network, "network", "all", "network profile to measure: all, Mobile or Desktop")
	return cmd
}

func runMeasure(parent context.Context, filter valueobject.NetworkFilter, out io.Writer) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, log, false)
	if err != nil {
		log.Error("Failed to initialize application", err)
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		app.Close(closeCtx)
	}()

	ticket, err := app.coordinator.Start(ctx, usecase.RunRequest{
		Network: filter,
		Trigger: valueobject.TriggerCLI,
	})
	if err != nil {
		return err
	}
	if ticket.Total == 0 {
		fmt.Fprintln(out, usecase.NoTargetsMessage)
		return nil
	}

	fmt.Fprintf(out, "Run %s started: %d targets (%s)\n", ticket.RunID, ticket.Total, ticket.Network.String())

	select {
	case <-ticket.Done:
	case <-ctx.Done():
		// Прерывание отменяет запуск; уже измеренные записи сохранены
		log.Warn("Interrupted, cancelling measurement run", "run_id", ticket.RunID)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		_ = app.coordinator.Shutdown(shutdownCtx)
		cancel()
		<-ticket.Done
	}

	status := app.coordinator.Status()
	printRunSummary(out, status, cfg.DisplayLocation())

	if status.Outcome == string(valueobject.RunTotallyFailed) {
		return errRunFailed
	}
	return nil
}

func printRunSummary(out io.Writer, status *dto.RunStatusDTO, loc *time.Location) {
	fmt.Fprintf(out, "Outcome:   %s\n", status.Outcome)
	fmt.Fprintf(out, "Completed: %d / %d (failed %d)\n", status.Completed, status.Total, status.Failed)
	if status.Message != "" {
		fmt.Fprintf(out, "Message:   %s\n", status.Message)
	}
	if status.StartedAt != nil && status.FinishedAt != nil {
		fmt.Fprintf(out, "Started:   %s\n", status.StartedAt.In(loc).Format("2006-01-02 15:04:05 MST"))
		fmt.Fprintf(out, "Duration:  %s\n", status.FinishedAt.Sub(*status.StartedAt).Round(time.Second))
	}
	if status.TimedOut {
		fmt.Fprintln(out, "The run hit the watchdog limit and was cut short.")
	}
}
