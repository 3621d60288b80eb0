package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/sdk/go/oracle"
)

// main creates a chat context and an inference request on a running node,
// then waits for the oracle to answer it.
//
//	ORACLE_RPC_URL=http://localhost:8899 ORACLE_REQUESTER_KEY=<base58> go run ./sdk/go/examples
func main() {
	rpcURL := os.Getenv("ORACLE_RPC_URL")
	if rpcURL == "" {
		rpcURL = "http://localhost:8899"
	}
	signer, err := requester()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := oracle.Dial(ctx, rpcURL, ledger.Pubkey{}, signer)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	if _, balance, err := client.Airdrop(ctx, signer.PublicKey(), 1_000_000_000); err == nil {
		fmt.Printf("requester %s balance=%d\n", signer.PublicKey(), balance)
	}

	chat, _, err := client.CreateChat(ctx, "You are a concise assistant.", 0)
	if err != nil {
		log.Fatalf("create chat: %v", err)
	}
	fmt.Printf("chat context %s\n", chat)

	request, sig, err := client.CreateInference(ctx, oracle.Request{Seed: 0, Text: "What is 2+2?"})
	if err != nil {
		log.Fatalf("create inference: %v", err)
	}
	fmt.Printf("request %s submitted in %s\n", request, sig)

	inf, err := client.WaitProcessed(ctx, request)
	if err != nil {
		log.Fatalf("waiting for the oracle: %v", err)
	}
	fmt.Printf("request answered (processed=%t), response delivered to %s\n", inf.IsProcessed, inf.CallbackProgramID)
}

func requester() (*ledger.Keypair, error) {
	if secret := os.Getenv("ORACLE_REQUESTER_KEY"); secret != "" {
		return ledger.KeypairFromBase58(secret)
	}
	return ledger.NewKeypair()
}
