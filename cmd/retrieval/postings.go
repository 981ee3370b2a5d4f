package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/tokenizer"
)

func postingsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "postings <term>",
		Short: "Print the posting list of one term from the latest saved index",
		Long: `Look up a single term in the newest segment under indexer.dataDir.
Only the dictionary and the term's own postings are read. The term is
normalised the way the segment was built.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := segment.Latest(a.cfg.Indexer.DataDir)
			if err != nil {
				return err
			}
			if path == "" {
				return fmt.Errorf("no saved index in %s", a.cfg.Indexer.DataDir)
			}
			r, err := segment.OpenReader(path)
			if err != nil {
				return err
			}
			defer r.Close()

			tokens := tokenizer.New(tokenizer.Options{Stem: r.Stemmed()}).Tokenize(args[0])
			if len(tokens) != 1 {
				return fmt.Errorf("%q does not normalise to a single term", args[0])
			}
			term := tokens[0].Term
			postings, err := r.Search(term)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "segment %s: %d terms, %d documents\n", filepath.Base(r.Path()), r.Terms(), r.DocCount())
			fmt.Fprintf(out, "%s: %d documents, %d occurrences\n", term, len(postings), postings.TotalFrequency())
			if len(postings) == 0 {
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DOC\tPATH\tFREQ\tPOSITIONS")
			for _, p := range postings {
				doc, _ := r.Document(p.DocID)
				fmt.Fprintf(tw, "%d\t%s\t%d\t%v\n", p.DocID, doc.Path, p.Frequency, p.Positions)
			}
			return tw.Flush()
		},
	}
}
