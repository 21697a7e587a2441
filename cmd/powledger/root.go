package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Klingon-tech/powledger/config"
	"github.com/Klingon-tech/powledger/internal/node"
)

// Environment variables consulted before prompting.
const (
	envPassphrase        = "POWLEDGER_PASSPHRASE"
	envKeyfilePassphrase = "POWLEDGER_KEYFILE_PASSPHRASE"
)

type app struct {
	flags config.Flags
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "powledger",
		Short:         "Single-node UTXO ledger with proof-of-work blocks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	a.flags.Bind(root.PersistentFlags())

	root.AddCommand(
		a.initCmd(),
		a.userCmd(),
		a.fundCmd(),
		a.sendCmd(),
		a.pendingCmd(),
		a.mineCmd(),
		a.balanceCmd(),
		a.chainCmd(),
		a.resetCmd(),
		a.serveCmd(),
		a.rpcCmd(),
	)
	return root
}

// withNode opens the ledger, runs fn and, when save is set and fn
// succeeded, writes the ledger back.
func (a *app) withNode(cmd *cobra.Command, save bool, fn func(ctx context.Context, n *node.Node) error) error {
	cfg, err := config.Load(&a.flags)
	if err != nil {
		return err
	}

	var passphrase []byte
	if cfg.Keys.Encrypt {
		if passphrase, err = readPassphrase(envPassphrase, "State passphrase: "); err != nil {
			return err
		}
	}

	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := node.New(ctx, cfg, passphrase)
	if err != nil {
		return err
	}
	defer n.Close()

	if err := fn(ctx, n); err != nil {
		return err
	}
	if save {
		return n.Save()
	}
	return nil
}

// readPassphrase takes the passphrase from env, or prompts on a terminal.
func readPassphrase(env, prompt string) ([]byte, error) {
	if v := os.Getenv(env); v != "" {
		return []byte(v), nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("passphrase required: set %s or run in a terminal", env)
	}
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	if len(pass) == 0 {
		return nil, fmt.Errorf("empty passphrase")
	}
	return pass, nil
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the ledger (mines the genesis block) if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withNode(cmd, true, func(_ context.Context, n *node.Node) error {
				c := n.Ledger().Chain()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Config:     %s\n", n.Config().ConfigFile())
				fmt.Fprintf(out, "State:      %s (%s)\n", n.Config().StateDir(), n.Config().Storage.Backend)
				fmt.Fprintf(out, "Difficulty: %q\n", c.Difficulty())
				fmt.Fprintf(out, "Height:     %d\n", c.Height())
				fmt.Fprintf(out, "Genesis:    %s\n", c.Blocks()[0].Hash)
				return nil
			})
		},
	}
}

func (a *app) resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all saved state and start a fresh ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("reset deletes every user, block and output; pass --yes to confirm")
			}
			return a.withNode(cmd, true, func(ctx context.Context, n *node.Node) error {
				if err := n.Reset(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ledger reset. Genesis: %s\n", n.Ledger().Chain().Last().Hash)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}
