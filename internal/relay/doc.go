// Package relay implements the off-chain oracle daemon. It subscribes to
// inference accounts owned by the registry program, asks the model backend
// for a completion and submits the signed finalize transaction. Any error it
// cannot skip tears the whole pipeline down; the daemon then rebuilds the
// client, queue and subscription from scratch.
package relay
