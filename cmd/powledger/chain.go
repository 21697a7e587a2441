package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/powledger/internal/chain"
	"github.com/Klingon-tech/powledger/internal/node"
)

func (a *app) chainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Inspect and validate the block chain",
	}
	cmd.AddCommand(a.chainShowCmd(), a.chainValidateCmd())
	return cmd
}

func (a *app) chainShowCmd() *cobra.Command {
	var showTxs bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print every block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withNode(cmd, false, func(_ context.Context, n *node.Node) error {
				out := cmd.OutOrStdout()
				c := n.Ledger().Chain()
				st := c.State()
				fmt.Fprintf(out, "Height %d, difficulty %q, supply %s\n\n", st.Height, c.Difficulty(), st.Supply)
				for _, blk := range c.Blocks() {
					fmt.Fprintf(out, "Block %d\n", blk.Index)
					fmt.Fprintf(out, "  Time:  %s\n", time.Unix(blk.Timestamp, 0).UTC().Format(time.RFC3339))
					fmt.Fprintf(out, "  Prev:  %s\n", blk.PrevHash)
					fmt.Fprintf(out, "  Hash:  %s\n", blk.Hash)
					fmt.Fprintf(out, "  Nonce: %d\n", blk.Nonce)
					fmt.Fprintf(out, "  Txs:   %d\n", len(blk.Transactions))
					if !showTxs {
						continue
					}
					for _, t := range blk.Transactions {
						fmt.Fprintf(out, "    %s fee=%s\n", t.TxID, t.Fee)
						for _, in := range t.Inputs {
							if t.IsCoinbase() {
								break
							}
							fmt.Fprintf(out, "      in  %s\n", in.PrevOut)
						}
						for i, o := range t.Outputs {
							fmt.Fprintf(out, "      out %d %s -> %s\n", i, o.Amount, o.Address)
						}
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showTxs, "txs", false, "Also print each block's transactions")
	return cmd
}

func (a *app) chainValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every block's hash, link and proof of work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withNode(cmd, false, func(_ context.Context, n *node.Node) error {
				err := n.Ledger().ValidateChain()
				var verr *chain.ValidationError
				if errors.As(err, &verr) {
					return fmt.Errorf("chain invalid at block %d: %w", verr.Index, verr.Err)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Chain valid: %d blocks\n", n.Ledger().Chain().Len())
				return nil
			})
		},
	}
}
