package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/internal/registry"
	"LLM-Oracle-Chain/sdk/go/oracle"
)

func newInitializeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "initialize",
		Short: "Create the registry config account (admin only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer client.Close()
			config, sig, err := client.Initialize(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"signature": sig, "config": config})
		},
	}
}

func newCreateChatCmd(opts *options) *cobra.Command {
	var seed uint8
	cmd := &cobra.Command{
		Use:   "create-chat <text>",
		Short: "Create a chat context holding a system prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer client.Close()
			chat, sig, err := client.CreateChat(cmd.Context(), args[0], seed)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"signature": sig, "chat_context": chat})
		},
	}
	cmd.Flags().Uint8Var(&seed, "seed", 0, "Chat context seed")
	return cmd
}

func newCreateInferenceCmd(opts *options) *cobra.Command {
	var (
		seed            uint8
		callbackProgram string
		discriminator   string
		accounts        []string
	)
	cmd := &cobra.Command{
		Use:   "create-inference <text>",
		Short: "Create or overwrite the inference request for a chat context",
		Long: `Create or overwrite the inference request for a chat context.

Without --callback-program the registry's own test callback is used.
Callback accounts are given as pubkey[:w] where :w marks the account writable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := oracle.Request{Seed: seed, Text: args[0]}
			var err error
			if callbackProgram != "" {
				if req.CallbackProgram, err = ledger.ParsePubkey(callbackProgram); err != nil {
					return fmt.Errorf("parsing callback program: %w", err)
				}
				if discriminator == "" {
					return errors.New("--callback-discriminator is required with --callback-program")
				}
			}
			if discriminator != "" {
				if req.Discriminator, err = parseDiscriminator(discriminator); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("callback-account") {
				if req.Accounts, err = parseCallbackAccounts(accounts); err != nil {
					return err
				}
			}

			client, err := opts.client(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer client.Close()
			inference, sig, err := client.CreateInference(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"signature": sig, "inference": inference})
		},
	}
	cmd.Flags().Uint8Var(&seed, "seed", 0, "Seed of the chat context to attach to")
	cmd.Flags().StringVar(&callbackProgram, "callback-program", "", "Program receiving the response")
	cmd.Flags().StringVar(&discriminator, "callback-discriminator", "", "8-byte instruction prefix as hex")
	cmd.Flags().StringArrayVar(&accounts, "callback-account", nil, "Extra account forwarded to the callback (pubkey[:w])")
	return cmd
}

func newShowRequestCmd(opts *options) *cobra.Command {
	var seed uint8
	cmd := &cobra.Command{
		Use:   "show-request [user]",
		Short: "Print a chat context and its inference request",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var user ledger.Pubkey
			if len(args) == 1 {
				key, err := ledger.ParsePubkey(args[0])
				if err != nil {
					return err
				}
				user = key
			} else {
				kp, err := opts.signer()
				if err != nil {
					return err
				}
				user = kp.PublicKey()
			}
			client, err := opts.client(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer client.Close()

			chatKey, chat, err := client.ChatContext(cmd.Context(), user, seed)
			if err != nil {
				return fmt.Errorf("chat context %s: %w", chatKey, err)
			}
			out := map[string]any{
				"chat_context": map[string]any{"address": chatKey, "state": chat},
			}
			infKey, inf, err := client.Inference(cmd.Context(), user, seed)
			switch {
			case err == nil:
				out["inference"] = map[string]any{
					"address":                infKey,
					"state":                  inf,
					"callback_discriminator": hex.EncodeToString(inf.CallbackDiscrim[:]),
				}
			case errors.Is(err, oracle.ErrNotFound):
				out["inference"] = nil
			default:
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().Uint8Var(&seed, "seed", 0, "Chat context seed")
	return cmd
}

func parseDiscriminator(s string) (registry.Discriminator, error) {
	var d registry.Discriminator
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return d, fmt.Errorf("parsing discriminator: %w", err)
	}
	if len(raw) != registry.DiscriminatorLength {
		return d, fmt.Errorf("discriminator must be %d bytes, got %d", registry.DiscriminatorLength, len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

func parseCallbackAccounts(specs []string) ([]registry.AccountMeta, error) {
	metas := make([]registry.AccountMeta, 0, len(specs))
	for _, spec := range specs {
		key, flags, _ := strings.Cut(spec, ":")
		pubkey, err := ledger.ParsePubkey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing callback account %q: %w", spec, err)
		}
		meta := registry.AccountMeta{Pubkey: pubkey}
		switch flags {
		case "":
		case "w":
			meta.IsWritable = true
		default:
			return nil, fmt.Errorf("unknown callback account flags %q", flags)
		}
		metas = append(metas, meta)
	}
	return metas, nil
}
