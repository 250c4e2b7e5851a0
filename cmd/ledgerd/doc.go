// Package main (cmd/ledgerd) runs the capsule ledger server.
//
// On start the ledger is built from a TOML genesis file (or the defaults),
// or restored from a snapshot previously saved to the configured storage
// locations. While running, the server saves a snapshot to storage whenever
// the ledger changed during the last snapshot interval, and once more on
// shutdown.
//
// Usage:
//
//	ledgerd --genesis genesis.toml --storage file:///var/lib/ledger/
//	ledgerd --storage file:///var/lib/ledger/ --restore <snapshot content id>
//	ledgerd genesis > genesis.toml
package main
