package cli

import (
	"github.com/spf13/cobra"

	"option_go/internal/domain"
)

func addQueryCommands(rootCmd *cobra.Command, a *App) {
	rootCmd.AddCommand(newShowCmd(a))
	rootCmd.AddCommand(newJournalCmd(a))
	rootCmd.AddCommand(newInstancesCmd(a))
}

type stateView struct {
	domain.OptionState
	Lifecycle string `json:"lifecycle"`
}

func newShowCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <instance>",
		Short: "Print an instance's persisted state",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			st, err := a.Boot.Controller.State(c.Context(), domain.InstanceID(args[0]))
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), stateView{OptionState: st, Lifecycle: st.Lifecycle().String()})
		},
	}
}

func newJournalCmd(a *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal [instance]",
		Short: "List committed transitions in sequence order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var id domain.InstanceID
			if len(args) == 1 {
				id = domain.InstanceID(args[0])
			}
			entries, err := a.Boot.Storage.ListJournal(c.Context(), id, limit)
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries (0: all)")
	return cmd
}

func newInstancesCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "instances",
		Short: "List instances with persisted state",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			ids, err := a.Boot.Storage.Instances(c.Context())
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), ids)
		},
	}
}
