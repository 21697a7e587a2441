package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/powledger/config"
	"github.com/Klingon-tech/powledger/internal/node"
	"github.com/Klingon-tech/powledger/internal/rpc"
	"github.com/Klingon-tech/powledger/internal/rpcclient"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger over JSON-RPC until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withNode(cmd, true, func(ctx context.Context, n *node.Node) error {
				cfg := n.Config()
				srv := rpc.New(cfg.RPCListenAddr(), n.Ledger(), cfg.RPC)
				srv.SetPersist(n.Save)
				if err := srv.Start(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Serving JSON-RPC on http://%s/\n", srv.Addr())

				<-ctx.Done()
				return srv.Stop()
			})
		},
	}
}

func (a *app) rpcCmd() *cobra.Command {
	var (
		endpoint string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "rpc <method> [params-json]",
		Short: "Call a method on a running powledger serve",
		Example: `  powledger rpc chain_getInfo
  powledger rpc tx_send '{"from":"alice","to":"bob","amount":"1.5"}'
  powledger rpc mining_mine`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if endpoint == "" {
				cfg, err := config.Load(&a.flags)
				if err != nil {
					return err
				}
				endpoint = cfg.RPCEndpoint()
			}

			var params interface{}
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
					return fmt.Errorf("params: %w", err)
				}
			}

			var result json.RawMessage
			client := rpcclient.NewWithTimeout(endpoint, timeout)
			if err := client.CallContext(cmd.Context(), args[0], params, &result); err != nil {
				return err
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "RPC URL (default: from rpc.addr and rpc.port)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Call timeout; mining can be slow")
	return cmd
}
