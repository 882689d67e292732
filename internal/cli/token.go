package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"option_go/internal/domain"
)

func addTokenCommands(rootCmd *cobra.Command, a *App) {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sandbox token ledger",
		Long:  "Mint balances and grant allowances to the engine in the local token ledger.",
	}
	cmd.AddCommand(newMintCmd(a))
	cmd.AddCommand(newApproveCmd(a))
	cmd.AddCommand(newBalanceCmd(a))
	rootCmd.AddCommand(cmd)
}

func parseAmount(s string) (domain.Amount, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	return domain.Amount(n), err
}

type balanceView struct {
	Token     domain.Principal `json:"token"`
	Owner     domain.Principal `json:"owner"`
	Balance   domain.Amount    `json:"balance"`
	Allowance domain.Amount    `json:"allowance_to_engine"`
}

func (a *App) printBalance(c *cobra.Command, token, owner domain.Principal) error {
	ctx := c.Context()
	bal, err := a.Boot.Storage.Balance(ctx, token, owner)
	if err != nil {
		return err
	}
	allow, err := a.Boot.Storage.Allowance(ctx, token, owner, a.Boot.Controller.Engine())
	if err != nil {
		return err
	}
	return printJSON(c.OutOrStdout(), balanceView{Token: token, Owner: owner, Balance: bal, Allowance: allow})
}

func newMintCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "mint <token> <owner> <amount>",
		Short: "Credit owner with amount of token",
		Args:  cobra.ExactArgs(3),
		RunE: func(c *cobra.Command, args []string) error {
			amt, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			token, owner := domain.Principal(args[0]), domain.Principal(args[1])
			if err := a.Boot.Storage.Mint(c.Context(), token, owner, amt); err != nil {
				return err
			}
			return a.printBalance(c, token, owner)
		},
	}
}

func newApproveCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <token> <owner> <amount>",
		Short: "Set owner's allowance to the engine account",
		Args:  cobra.ExactArgs(3),
		RunE: func(c *cobra.Command, args []string) error {
			amt, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			token, owner := domain.Principal(args[0]), domain.Principal(args[1])
			if err := a.Boot.Storage.Approve(c.Context(), token, owner, a.Boot.Controller.Engine(), amt); err != nil {
				return err
			}
			return a.printBalance(c, token, owner)
		},
	}
}

func newBalanceCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <token> <owner>",
		Short: "Print owner's balance and allowance to the engine",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return a.printBalance(c, domain.Principal(args[0]), domain.Principal(args[1]))
		},
	}
}
