package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/powledger/internal/node"
	"github.com/Klingon-tech/powledger/internal/wallet"
)

func (a *app) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users and their keys",
	}
	cmd.AddCommand(a.userCreateCmd(), a.userRecoverCmd(), a.userListCmd(), a.userExportCmd(), a.userImportCmd())
	return cmd
}

func (a *app) userCreateCmd() *cobra.Command {
	var withMnemonic bool
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a user with a new key pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withNode(cmd, true, func(_ context.Context, n *node.Node) error {
				out := cmd.OutOrStdout()
				if !withMnemonic {
					acct, err := n.Ledger().CreateUser(args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "User created: %s\nAddress: %s\n", acct.Name, acct.Address())
					return nil
				}
				acct, mnemonic, err := n.Ledger().CreateUserWithMnemonic(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Recovery phrase (write this down!):")
				fmt.Fprintf(out, "  %s\n\n", mnemonic)
				fmt.Fprintf(out, "User created: %s\nAddress: %s\n", acct.Name, acct.Address())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&withMnemonic, "mnemonic", false, "Derive the key from a new 24-word recovery phrase")
	return cmd
}

func (a *app) userRecoverCmd() *cobra.Command {
	var mnemonic, passphrase string
	cmd := &cobra.Command{
		Use:   "recover <name>",
		Short: "Recreate a user from a recovery phrase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if mnemonic == "" {
				return fmt.Errorf("--mnemonic is required")
			}
			return a.withNode(cmd, true, func(_ context.Context, n *node.Node) error {
				acct, err := n.Ledger().RecoverUser(args[0], mnemonic, passphrase)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User recovered: %s\nAddress: %s\n", acct.Name, acct.Address())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "BIP-39 recovery phrase")
	cmd.Flags().StringVar(&passphrase, "bip39-passphrase", "", "Optional BIP-39 passphrase")
	return cmd
}

func (a *app) userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users with their addresses and balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withNode(cmd, false, func(_ context.Context, n *node.Node) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tADDRESS\tBALANCE")
				for _, acct := range n.Ledger().Users() {
					bal, err := n.Ledger().Balance(acct.Address())
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", acct.Name, acct.Address(), bal)
				}
				return w.Flush()
			})
		},
	}
}

func (a *app) userExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <name>",
		Short: "Write a user's key to an encrypted key file in the keystore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withNode(cmd, false, func(_ context.Context, n *node.Node) error {
				acct, err := n.Ledger().User(args[0])
				if err != nil {
					return err
				}
				pass, err := readPassphrase(envKeyfilePassphrase, "Key file passphrase: ")
				if err != nil {
					return err
				}
				path, err := n.Keystore().Export(acct, pass)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Key exported: %s\n", path)
				return nil
			})
		},
	}
}

func (a *app) userImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <keyfile>",
		Short: "Register a user from an encrypted key file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withNode(cmd, true, func(_ context.Context, n *node.Node) error {
				pass, err := readPassphrase(envKeyfilePassphrase, "Key file passphrase: ")
				if err != nil {
					return err
				}
				name, createdAt, kp, err := wallet.Import(args[0], pass)
				if err != nil {
					return err
				}
				acct, err := n.Ledger().ImportUser(&wallet.Account{Name: name, Key: kp, CreatedAt: createdAt})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User imported: %s\nAddress: %s\n", acct.Name, acct.Address())
				return nil
			})
		},
	}
}
