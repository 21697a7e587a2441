package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/powledger/internal/ledger"
	"github.com/Klingon-tech/powledger/internal/node"
	"github.com/Klingon-tech/powledger/pkg/types"
)

func (a *app) fundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fund <name> <amount>",
		Short: "Credit a user with coins outside the chain (development only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := types.ParseAmount(args[1])
			if err != nil {
				return err
			}
			return a.withNode(cmd, true, func(_ context.Context, n *node.Node) error {
				op, err := n.Ledger().Fund(args[0], amount)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Funded %s with %s (%s)\n", args[0], amount, op)
				return nil
			})
		},
	}
}

func (a *app) sendCmd() *cobra.Command {
	var fee string
	cmd := &cobra.Command{
		Use:   "send <from> <to> <amount>",
		Short: "Queue a signed payment; <to> is a user name or an address",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := types.ParseAmount(args[2])
			if err != nil {
				return err
			}
			feeAmount, err := types.ParseAmount(fee)
			if err != nil {
				return fmt.Errorf("--fee: %w", err)
			}
			return a.withNode(cmd, true, func(_ context.Context, n *node.Node) error {
				payment, err := n.Ledger().SendPayment(ledger.PaymentRequest{
					From:   args[0],
					To:     args[1],
					Amount: amount,
					Fee:    feeAmount,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Payment queued: %s\n", payment.TxID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fee, "fee", "1", "Fee left for the miner")
	return cmd
}

func (a *app) pendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Inspect or drop queued payments",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued payments in arrival order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withNode(cmd, false, func(_ context.Context, n *node.Node) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TXID\tINPUTS\tOUTPUT\tFEE")
				for _, t := range n.Ledger().Pending() {
					total, err := t.TotalOutput()
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", t.TxID, len(t.Inputs), total, t.Fee)
				}
				return w.Flush()
			})
		},
	}, &cobra.Command{
		Use:   "drop <txid>",
		Short: "Discard a queued payment and release its inputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withNode(cmd, true, func(_ context.Context, n *node.Node) error {
				if err := n.Ledger().Discard(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Dropped %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func (a *app) mineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "Seal every queued payment into a new block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withNode(cmd, true, func(ctx context.Context, n *node.Node) error {
				blk, err := n.Ledger().Mine(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Block %d mined\n", blk.Index)
				fmt.Fprintf(out, "  Hash:     %s\n", blk.Hash)
				fmt.Fprintf(out, "  Nonce:    %d\n", blk.Nonce)
				fmt.Fprintf(out, "  Payments: %d\n", len(blk.Payments()))
				if cb, ok := blk.Coinbase(); ok {
					fmt.Fprintf(out, "  Reward:   %s to %s\n", cb.Outputs[0].Amount, cb.Outputs[0].Address)
				}
				return nil
			})
		},
	}
}

func (a *app) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [name|address]",
		Short: "Show balances; without an argument, every user plus GENESIS and MINER",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withNode(cmd, false, func(_ context.Context, n *node.Node) error {
				l := n.Ledger()
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					addr := args[0]
					if acct, err := l.User(args[0]); err == nil {
						addr = acct.Address()
					}
					bal, err := l.Balance(addr)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s\n", bal)
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "OWNER\tBALANCE")
				for _, acct := range l.Users() {
					bal, err := l.Balance(acct.Address())
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%s\t%s\n", acct.Name, bal)
				}
				for _, addr := range []string{types.GenesisAddress, types.MinerAddress} {
					bal, err := l.Balance(addr)
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%s\t%s\n", addr, bal)
				}
				return w.Flush()
			})
		},
	}
}
