// Package api serves a ledger node over HTTP: JSON-RPC on the RPC address,
// websocket subscriptions on the WS address, plus health and metrics
// endpoints.
package api
