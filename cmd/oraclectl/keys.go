package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"LLM-Oracle-Chain/internal/ledger"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new ed25519 keypair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := ledger.NewKeypair()
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{
				"pubkey": kp.PublicKey().String(),
				"secret": kp.Base58(),
			})
		},
	}
}

func newAirdropCmd(opts *options) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "airdrop <lamports>",
		Short: "Request lamports from the node for the signer or --to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lamports, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return err
			}
			var target ledger.Pubkey
			if to != "" {
				if target, err = ledger.ParsePubkey(to); err != nil {
					return err
				}
			} else {
				kp, err := opts.signer()
				if err != nil {
					return err
				}
				target = kp.PublicKey()
			}
			client, err := opts.client(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer client.Close()
			sig, balance, err := client.Airdrop(cmd.Context(), target, lamports)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"signature": sig,
				"account":   target,
				"balance":   balance,
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Recipient pubkey (defaults to the signer)")
	return cmd
}
