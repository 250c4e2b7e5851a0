// Package ledger hosts the item machine, collection registry, shard sync
// coordinator, enclave registry and balances behind one lock, turning every
// operation into an atomic transition with a committed event log. It also
// produces and restores JSON snapshots of the whole state.
package ledger
