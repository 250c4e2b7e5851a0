// Package items implements the item state machine.
//
// An item's state is a Phase (idle, or awaiting the enclave acknowledgments
// of a secret or capsule hand-off), a set of access Markers (listed,
// delegated, rented, in transmission, soulbound) and the payload kinds it
// carries. The nine boolean flags exposed to clients are derived from these
// through Item.Flags, so a syncing flag can never be set without its payload
// flag.
//
// Every operation evaluates its checks in a fixed order: the item must exist,
// the caller must own it (and for royalties have created it), then the
// operation's guard table is walked, then payload-kind conditions apply. Each
// guard violation has its own named error. Fees are debited after all checks
// pass and before any state changes.
package items
