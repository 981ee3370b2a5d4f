package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/experiment"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/config"
)

func indexCmd(a *app) *cobra.Command {
	var update, prune bool
	cmd := &cobra.Command{
		Use:   "index [collection]",
		Short: "Build the index and save it as a segment in indexer.dataDir",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.cfg.Experiment.CollectionPath = args[0]
			}
			if a.cfg.Experiment.CollectionPath == "" {
				return fmt.Errorf("no collection location given")
			}
			if update {
				a.cfg.Indexer.OpenMode = config.OpenModeUpdate
			}
			if cmd.Flags().Changed("prune") {
				a.cfg.Indexer.Prune = prune
			}
			a.cfg.Indexer.Persist = true

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			built, err := experiment.New(a.cfg, experiment.WithMetrics(a.metrics)).Build(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "indexed %d, updated %d, removed %d, failed %d; %d documents, %d terms in %s\n",
				built.Report.Indexed, built.Report.Updated, built.Report.Removed, len(built.Report.Failed),
				built.Snapshot.DocCount(), built.Snapshot.TermCount(), a.cfg.Indexer.DataDir)
			for _, de := range built.Report.Failed {
				fmt.Fprintf(out, "  skipped %s: %v\n", de.Path, de.Err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&update, "update", "u", false, "upsert into the latest saved index instead of starting empty")
	cmd.Flags().BoolVar(&prune, "prune", false, "with --update, remove saved documents missing from the collection")
	return cmd
}
