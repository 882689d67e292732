package cli

import (
	"github.com/spf13/cobra"
)

func addServeCommand(rootCmd *cobra.Command, a *App) {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the sequencer, oracle feed and settlement keeper",
		Long: `Run the long-lived engine: a single sequencer applies every transition,
the oracle service posts feed prices for configured oracle instances, and the
keeper settles configured instances once they expire. Stops on SIGINT/SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return a.Boot.Serve(c.Context(), a.clock())
		},
	})
}
