// Package cli provides the command-line interface to the option engine.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"option_go/internal/app"
	"option_go/internal/domain"
)

// App holds the state shared by all commands.
type App struct {
	Boot *app.Bootstrap

	configPath string
	now        int64
	caller     string
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	a := &App{}

	rootCmd := &cobra.Command{
		Use:   "option",
		Short: "European covered call settlement engine",
		Long: `option offers, sells and settles European covered calls.

Buyer-exercised options use create / purchase / exercise / expire.
Oracle-settled options use init / purchase / update-price / claim.
State, a sandbox token ledger and the transition journal live in SQLite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.Boot = app.NewBootstrap()
			return a.Boot.Initialize(a.configPath)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.Boot.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: "+app.DefaultConfigPath+" if present)")
	rootCmd.PersistentFlags().Int64Var(&a.now, "now", 0, "ledger clock in UNIX seconds (default: wall clock)")
	rootCmd.PersistentFlags().StringVar(&a.caller, "caller", "", "authenticated invoker principal")

	addTransitionCommands(rootCmd, a)
	addQueryCommands(rootCmd, a)
	addTokenCommands(rootCmd, a)
	addServeCommand(rootCmd, a)

	return rootCmd
}

// clock returns the fixed clock from --now, or the wall clock.
func (a *App) clock() domain.Clock {
	if a.now != 0 {
		return domain.FixedClock(a.now)
	}
	return domain.SystemClock{}
}

// invocation builds the caller context for a transition.
func (a *App) invocation() (domain.Invocation, error) {
	if a.caller == "" {
		return domain.Invocation{}, fmt.Errorf("--caller is required")
	}
	return domain.Invocation{Caller: domain.Principal(a.caller), Now: a.clock().Now()}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
