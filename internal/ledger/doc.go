// Package ledger is an in-process account ledger with the execution model
// the request registry is written against: ed25519-signed transactions,
// program-owned accounts, program-derived addresses, rent-exempt balances,
// cross-program invocation with derived signers, and all-or-nothing
// transaction commits. A Service exposes a Bank over go-ethereum's JSON-RPC
// server so the relay can reach it over HTTP, websocket or in-process pipes.
package ledger
