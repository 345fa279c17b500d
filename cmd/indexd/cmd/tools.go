package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// newToolsCmd creates the tools command.
func newToolsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List registered indexing tools",
		Long: `Lists every tool registered in the indexer storage, with its numeric
id and configuration fingerprint. Tools are registered on first use by
the indexer that carries them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			infos, err := store.Tools(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			if len(infos) == 0 {
				cmd.Println("no tools registered")
				return nil
			}
			for _, info := range infos {
				cmd.Printf("%4d  %s %s  %s\n",
					info.ID, info.Name, info.Version, info.Fingerprint()[:12])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
