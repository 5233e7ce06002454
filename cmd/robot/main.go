// Command robot is the liquidation and risk-monitoring service's entry
// point. Its one fully-wired subcommand, bot, starts the whole pipeline:
// Store → StateMap (rehydrated) → ChainClient → QueryFacade → HTTP →
// Liquidator → Subscriber → Watch, and waits for SIGINT/SIGTERM. Every
// other subcommand is an admin transaction builder this service does
// not implement.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "robot",
		Short: "liquidation and risk-monitoring service for the protocol",
	}

	root.AddCommand(
		newConfigCmd(),
		stubCmd("init_vault", "initialize the protocol's vault account"),
		newInitMarketCmd(),
		stubCmd("init_user", "create a user account"),
		newDepositCmd(),
		newOpenPositionCmd(),
		newClosePositionCmd(),
		newMarginCmd("investment", "add margin to a full position"),
		newMarginCmd("divestment", "remove margin from a full position"),
		newBotCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var errNotImplemented = fmt.Errorf("not implemented: admin transaction builder is outside this service's scope")

func stubCmd(use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return errNotImplemented
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "read or write local config"}
	cmd.AddCommand(stubCmd("get", "print a config value"), stubCmd("set", "set a config value"))
	return cmd
}

func newInitMarketCmd() *cobra.Command {
	cmd := stubCmd("init_market", "register a new market")
	cmd.Flags().StringP("pyth", "p", "", "pyth price account")
	cmd.Flags().StringP("chainlink", "s", "", "chainlink price account")
	cmd.Flags().Float64P("spread", "y", 0, "market spread")
	cmd.Flags().StringP("pair", "t", "", "trading pair, e.g. BTC/USD")
	return cmd
}

func newDepositCmd() *cobra.Command {
	cmd := stubCmd("deposit", "deposit collateral into a user account")
	cmd.Flags().Float64P("amount", "a", 0, "deposit amount")
	return cmd
}

func newOpenPositionCmd() *cobra.Command {
	cmd := stubCmd("open_position", "open a position")
	cmd.Flags().StringP("pair", "p", "", "trading pair")
	cmd.Flags().Float64P("size", "s", 0, "position size")
	cmd.Flags().Uint16P("leverage", "l", 1, "leverage")
	cmd.Flags().StringP("kind", "t", "independent", "independent or full")
	cmd.Flags().StringP("direction", "d", "buy", "buy or sell")
	return cmd
}

func newClosePositionCmd() *cobra.Command {
	cmd := stubCmd("close_position", "close a position")
	cmd.Flags().StringP("account", "a", "", "position account")
	cmd.Flags().StringP("offset", "o", "", "position offset")
	return cmd
}

func newMarginCmd(use, short string) *cobra.Command {
	cmd := stubCmd(use, short)
	cmd.Flags().StringP("position", "p", "", "position account")
	cmd.Flags().Float64P("amount", "a", 0, "margin amount")
	return cmd
}
