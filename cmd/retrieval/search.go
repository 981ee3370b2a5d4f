package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/experiment"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/report"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
)

func searchCmd(a *app) *cobra.Command {
	var (
		limit     int
		mode      string
		fromIndex bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Evaluate one ad-hoc query",
		Long: `Evaluate one query against the collection, or against the latest
saved index with --from-index. Supports "phrases", +required, -excluded,
contents:term and the AND, OR and NOT operators.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != "" {
				a.cfg.Experiment.Mode = mode
			}
			if !cmd.Flags().Changed("limit") {
				limit = a.cfg.Search.DefaultLimit
			}
			if fromIndex {
				a.cfg.Indexer.OpenMode = config.OpenModeUpdate
				a.cfg.Experiment.CollectionPath = ""
			}
			a.cfg.Indexer.Persist = false
			ctx := cmd.Context()

			qc, closeCache := a.queryCache(ctx)
			defer closeCache()
			runner := experiment.New(a.cfg, experiment.WithMetrics(a.metrics), experiment.WithCache(qc))
			built, err := runner.Build(ctx)
			if err != nil {
				return err
			}
			s, err := runner.Searcher(built)
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			rep := report.QueryReport{QueryID: 0, Query: query, Mode: string(s.Mode())}
			res, err := s.Search(ctx, built.Snapshot, built.StopWords, query, limit)
			switch {
			case err == nil:
				rep.Parsed = res.Query
				rep.TotalHits = res.TotalHits
				rep.Hits = res.Results
			case apperrors.IsRecoverable(err):
				rep.Error = err.Error()
				rep.ErrorKind = apperrors.Kind(err)
			default:
				return err
			}
			sink := report.NewConsole(cmd.OutOrStdout())
			if err := sink.Write(ctx, rep); err != nil {
				return err
			}
			if err := sink.Close(); err != nil {
				return err
			}
			if errors.Is(err, apperrors.ErrQuerySyntax) {
				return fmt.Errorf("invalid query")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (defaults to search.defaultLimit)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "retrieval mode: bm25, tfidf or tf")
	cmd.Flags().BoolVar(&fromIndex, "from-index", false, "search the latest saved index instead of indexing the collection")
	return cmd
}
