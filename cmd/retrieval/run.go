package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/experiment"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/report"
)

func runCmd(a *app) *cobra.Command {
	var (
		output string
		mode   string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Index the collection and evaluate every query of the query file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "" {
				a.cfg.Experiment.OutputLocation = output
			}
			if mode != "" {
				a.cfg.Experiment.Mode = mode
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runExperiment(ctx, a)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output location (-, file, postgres://, sqlite://, kafka://)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "retrieval mode: bm25, tfidf or tf")
	return cmd
}

func runExperiment(ctx context.Context, a *app) error {
	qc, closeCache := a.queryCache(ctx)
	defer closeCache()

	sink, err := report.Open(ctx, a.cfg.Experiment.OutputLocation, a.cfg)
	if err != nil {
		return err
	}
	runner := experiment.New(a.cfg, experiment.WithMetrics(a.metrics), experiment.WithCache(qc))
	_, runErr := runner.Run(ctx, sink)
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
