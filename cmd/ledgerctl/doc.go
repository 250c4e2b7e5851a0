// Package main (cmd/ledgerctl) is the command line client of the capsule
// ledger API. Operations are signed with the key given by --key or
// LEDGER_KEY; queries need no key.
//
// The shares commands are the client half of a payload hand-off: split seals
// one Shamir share per enclave and stores the bundle in content-addressed
// storage, open unseals an enclave's share, and combine recovers the payload.
package main
