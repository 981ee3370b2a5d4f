package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/experiment"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/stopwords"
)

func stopwordsCmd(a *app) *cobra.Command {
	var (
		k   int
		all bool
	)
	cmd := &cobra.Command{
		Use:   "stopwords [collection]",
		Short: "Print the collection's most frequent terms with their statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.cfg.Experiment.CollectionPath = args[0]
			}
			if cmd.Flags().Changed("count") {
				a.cfg.Experiment.StopWordCount = k
			}
			a.cfg.Indexer.DropStopWords = false
			a.cfg.Indexer.Persist = false

			built, err := experiment.New(a.cfg, experiment.WithMetrics(a.metrics)).Build(cmd.Context())
			if err != nil {
				return err
			}
			stats := built.Stats
			if all {
				stats = stopwords.Collect(built.Snapshot)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tTERM\tTOTAL FREQ\tDOC FREQ")
			for i, st := range stats {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", i+1, st.Term, st.TotalFreq, st.DocFreq)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&k, "count", "k", 20, "number of stop words to select")
	cmd.Flags().BoolVar(&all, "all", false, "list every term of the collection in rank order")
	return cmd
}
