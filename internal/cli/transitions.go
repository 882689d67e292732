package cli

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"option_go/internal/domain"
	"option_go/internal/event"
	"option_go/internal/service"
)

// transitionResult is what every transition command prints.
type transitionResult struct {
	Op       domain.Op          `json:"op"`
	Instance domain.InstanceID  `json:"instance"`
	Outcome  string             `json:"outcome,omitempty"`
	State    domain.OptionState `json:"state"`
}

func addTransitionCommands(rootCmd *cobra.Command, a *App) {
	rootCmd.AddCommand(newOfferCmd(a, domain.OpCreate))
	rootCmd.AddCommand(newOfferCmd(a, domain.OpInit))
	rootCmd.AddCommand(newPurchaseCmd(a))
	rootCmd.AddCommand(newSimpleCmd(a, domain.OpExercise, "exercise", "Pay the strike and take the collateral (buyer, before expiry)"))
	rootCmd.AddCommand(newSimpleCmd(a, domain.OpExpire, "expire", "Return collateral to the seller after expiry"))
	rootCmd.AddCommand(newSimpleCmd(a, domain.OpClaim, "claim", "Settle an oracle option after expiry"))
	rootCmd.AddCommand(newUpdatePriceCmd(a))
}

// submit runs cmd through the sequencer so CLI transitions are journaled in
// the same order a long-running server would apply them.
func (a *App) submit(c *cobra.Command, cmd *event.Command) error {
	ctx, cancel := context.WithCancel(c.Context())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Boot.Sequencer.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	res, err := a.Boot.Sequencer.Submit(ctx, cmd)
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}
	st, err := a.Boot.Controller.State(ctx, cmd.Instance)
	if err != nil {
		return err
	}
	return printJSON(c.OutOrStdout(), transitionResult{Op: cmd.Op, Instance: cmd.Instance, Outcome: res.Outcome, State: st})
}

func newOfferCmd(a *App, op domain.Op) *cobra.Command {
	var p struct{ seller, base, quote, oracle string }
	use, short := "create <instance>", "Offer a buyer-exercised call and lock 1 unit of collateral"
	if op == domain.OpInit {
		use, short = "init <instance>", "Offer an oracle-settled call and lock 1 unit of collateral"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			inv, err := a.invocation()
			if err != nil {
				return err
			}
			seller := p.seller
			if seller == "" {
				seller = string(inv.Caller)
			}
			ev := event.NewCommand(op, domain.InstanceID(args[0]), inv)
			ev.Params = domain.CreateParams{
				Seller:     domain.Principal(seller),
				BaseToken:  domain.Principal(p.base),
				QuoteToken: domain.Principal(p.quote),
				Oracle:     domain.Principal(p.oracle),
			}
			return a.submit(c, ev)
		},
	}
	cmd.Flags().StringVar(&p.seller, "seller", "", "seller principal (default: --caller)")
	cmd.Flags().StringVar(&p.base, "base", "", "base (collateral) token")
	cmd.Flags().StringVar(&p.quote, "quote", "", "quote (payment) token")
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.MarkFlagRequired("quote")
	if op == domain.OpInit {
		cmd.Flags().StringVar(&p.oracle, "oracle", "", "oracle principal")
		_ = cmd.MarkFlagRequired("oracle")
	}
	return cmd
}

func newPurchaseCmd(a *App) *cobra.Command {
	var buyer string
	cmd := &cobra.Command{
		Use:   "purchase <instance>",
		Short: "Pay the premium and become the option's buyer",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			inv, err := a.invocation()
			if err != nil {
				return err
			}
			if buyer == "" {
				buyer = string(inv.Caller)
			}
			ev := event.NewCommand(domain.OpPurchase, domain.InstanceID(args[0]), inv)
			ev.Buyer = domain.Principal(buyer)
			return a.submit(c, ev)
		},
	}
	cmd.Flags().StringVar(&buyer, "buyer", "", "buyer principal (default: --caller)")
	return cmd
}

func newSimpleCmd(a *App, op domain.Op, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <instance>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			inv, err := a.invocation()
			if err != nil {
				return err
			}
			return a.submit(c, event.NewCommand(op, domain.InstanceID(args[0]), inv))
		},
	}
}

func newUpdatePriceCmd(a *App) *cobra.Command {
	var quoted string
	cmd := &cobra.Command{
		Use:   "update-price <instance> [minor-units]",
		Short: "Post the settlement price (oracle only)",
		Long: `Post the settlement price in quote-token minor units, or pass --quoted
with a decimal quote price that is scaled by oracle.decimals.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(c *cobra.Command, args []string) error {
			inv, err := a.invocation()
			if err != nil {
				return err
			}
			var price domain.Amount
			switch {
			case quoted != "":
				d, err := decimal.NewFromString(quoted)
				if err != nil {
					return err
				}
				if price, err = service.ToMinorUnits(d, a.Boot.Config.Oracle.Decimals); err != nil {
					return err
				}
			case len(args) == 2:
				n, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return err
				}
				price = domain.Amount(n)
			default:
				return cobra.ExactArgs(2)(c, args)
			}
			ev := event.NewCommand(domain.OpUpdatePrice, domain.InstanceID(args[0]), inv)
			ev.Price = price
			return a.submit(c, ev)
		},
	}
	cmd.Flags().StringVar(&quoted, "quoted", "", "decimal quote price, e.g. 0.61")
	return cmd
}
