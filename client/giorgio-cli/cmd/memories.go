package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var searchLimit int

var memoriesCmd = &cobra.Command{
	Use:   "memories",
	Short: "Inspect what Giorgio remembers about you",
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the user summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newClient().Summary(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(s.Summary)
		if s.TotalMemories == 0 {
			return nil
		}
		cats := make([]string, 0, len(s.Categories))
		for c, n := range s.Categories {
			cats = append(cats, fmt.Sprintf("%s: %d", c, n))
		}
		sort.Strings(cats)
		fmt.Printf("\nMemorie totali: %d (%s)\n", s.TotalMemories, strings.Join(cats, ", "))
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search memories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient().SearchMemories(cmd.Context(), strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		if len(res.Memories) == 0 {
			fmt.Println("Nessuna memoria trovata.")
			return nil
		}
		for i, m := range res.Memories {
			fmt.Printf("%d. [%s] %s (importanza %d, rilevanza %.0f%%)\n", i+1, m.Category, m.Content, m.Importance, m.Score*100)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 5, "maximum number of results")
	rootCmd.AddCommand(memoriesCmd)
	memoriesCmd.AddCommand(summaryCmd)
	memoriesCmd.AddCommand(searchCmd)
}
