// Package shardsync coordinates the hand-off of confidential item payloads
// to enclave clusters.
//
// When a secret is attached to an item or an item becomes a capsule, a
// session keyed by item id and payload kind is opened against a cluster
// chosen by a ClusterAssigner. Each enclave of that cluster acknowledges
// receipt of its shard once. Acknowledgments from enclaves outside the
// session's cluster, repeated acknowledgments and acknowledgments without an
// open session are rejected and leave the session untouched.
//
// Completion is decided by a QuorumPolicy against the cluster's membership at
// the time of the check, so a cluster that grows mid-session needs the new
// members too and a cluster that shrinks can complete early (see Reconcile).
package shardsync
