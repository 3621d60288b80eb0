// Package web3 houses ledger connectivity for the relay: the Client
// interface the pipeline is written against, program subscriptions, and
// YAML cluster definitions. Concrete transports live in subpackages.
package web3
