// Command oraclectl is the operator CLI for the oracle: key management,
// registry setup and request inspection against a running ledger node.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"LLM-Oracle-Chain/internal/config"
	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/internal/registry"
	"LLM-Oracle-Chain/internal/web3/provider"
	"LLM-Oracle-Chain/sdk/go/oracle"
)

const rootLongDesc string = `Operate the LLM oracle registry on a ledger node.

Connection defaults come from the oracle configuration file
(ORACLE_CONFIG, default configs/oracle.json) and the environment.
The signing key defaults to ORACLE_PRIVATE_KEY.

Examples:
  oraclectl keygen
  oraclectl airdrop 1000000000
  oraclectl initialize
  oraclectl create-chat "You are an assistant." --seed 0
  oraclectl create-inference "What is 2+2?" --seed 0
  oraclectl show-request <user> --seed 0`

// options holds the persistent flags shared by all subcommands.
type options struct {
	configPath string
	rpcURL     string
	keypair    string
	program    string

	cfg *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "oraclectl",
		Short:         "Operate the LLM oracle registry",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to the oracle configuration file")
	flags.StringVar(&opts.rpcURL, "rpc", "", "Ledger RPC endpoint (overrides the configured cluster)")
	flags.StringVar(&opts.keypair, "keypair", "", "Base58 secret key used to sign (defaults to ORACLE_PRIVATE_KEY)")
	flags.StringVar(&opts.program, "program", "", "Registry program id (defaults to the configured cluster)")

	cmd.AddCommand(newKeygenCmd())
	cmd.AddCommand(newAirdropCmd(opts))
	cmd.AddCommand(newInitializeCmd(opts))
	cmd.AddCommand(newCreateChatCmd(opts))
	cmd.AddCommand(newCreateInferenceCmd(opts))
	cmd.AddCommand(newShowRequestCmd(opts))
	cmd.AddCommand(newJournalCmd(opts))

	return cmd
}

// endpoint resolves the RPC URL and registry program id.
func (o *options) endpoint() (string, ledger.Pubkey, error) {
	web3Cfg := o.cfg.Web3
	if o.rpcURL != "" {
		web3Cfg.RPCURL = o.rpcURL
	}
	var programID ledger.Pubkey
	explicit := o.program
	if explicit == "" {
		explicit = o.cfg.Relay.ProgramID
	}
	if explicit != "" {
		id, err := ledger.ParsePubkey(explicit)
		if err != nil {
			return "", ledger.Pubkey{}, fmt.Errorf("parsing program id: %w", err)
		}
		programID = id
	}
	clusters, err := provider.NewRegistry(web3Cfg, programID)
	if err != nil {
		return "", ledger.Pubkey{}, err
	}
	cluster := clusters.Default()
	if programID.IsZero() {
		programID = cluster.ProgramID
	}
	if programID.IsZero() {
		programID = registry.DefaultProgramID
	}
	return cluster.RPCURL, programID, nil
}

// client connects the SDK to the resolved endpoint. Read-only commands may
// run without a keypair.
func (o *options) client(ctx context.Context, needSigner bool) (*oracle.Client, error) {
	rpcURL, programID, err := o.endpoint()
	if err != nil {
		return nil, err
	}
	var signer *ledger.Keypair
	if needSigner {
		if signer, err = o.signer(); err != nil {
			return nil, err
		}
	}
	return oracle.Dial(ctx, rpcURL, programID, signer)
}

func (o *options) signer() (*ledger.Keypair, error) {
	secret := strings.TrimSpace(o.keypair)
	if secret == "" {
		secret = o.cfg.Relay.PrivateKey
	}
	if secret == "" {
		return nil, fmt.Errorf("no keypair: pass --keypair or set %s", config.EnvPrivateKey)
	}
	return ledger.KeypairFromBase58(secret)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
