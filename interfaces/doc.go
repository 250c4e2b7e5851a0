// Package interfaces defines the identifiers, errors, events and collaborator
// contracts shared by the capsule ledger components, separating them from
// the implementations.
//
// # Identifiers
//
// AccountID is a 20-byte account address (owners, creators, enclave operators
// and enclave addresses). ItemID, CollectionID and ClusterID are monotonic
// numeric ids issued by the component that owns the entity. Royalties are
// Permill fractions.
//
// # Errors
//
// Every rejection is a *LedgerError sentinel carrying a stable Name and an
// ErrorClass (not found, unauthorized, guard, capacity, protocol, resource,
// invalid). Callers compare with errors.Is and map classes with ClassOf.
//
// # Events
//
// Successful operations emit Event values (ItemCreated, SecretSynced,
// EnclaveAssigned, ...) to an EventSink. Events of a rejected operation are
// never observed.
//
// # Collaborators
//
// Balances: fee debits with existential deposit ("keep alive") semantics.
//
// StorageBackend: content-addressed storage for ledger snapshots and payload
// shares across file, S3, IPFS and Vault backends.
package interfaces
