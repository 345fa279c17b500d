package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/archivetools/indexd/internal/storage"
)

// newSearchCmd creates the search command.
func newSearchCmd() *cobra.Command {
	var limit int
	var after string

	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search indexed symbols by name",
		Long: `Substring search over ctags symbol names. Results are ordered by
content id; pass --after with the last id of the previous page to
continue.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var cursor *storage.ContentID
			if after != "" {
				id, err := storage.ParseContentID(after)
				if err != nil {
					return fmt.Errorf("invalid --after cursor: %w", err)
				}
				cursor = &id
			}

			entries, err := store.CtagsSearch(cmd.Context(), args[0], limit, cursor)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				cmd.Println("no matches")
				return nil
			}

			for _, e := range entries {
				cmd.Printf("%s  %-30s %-12s %-10s line %d\n",
					e.ID, e.Name, e.Kind, e.Lang, e.Line)
			}
			cmd.Printf("\n%d results; continue with --after %s\n",
				len(entries), entries[len(entries)-1].ID)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum results per page")
	cmd.Flags().StringVar(&after, "after", "", "Return only content ids greater than this cursor")
	return cmd
}
