// Package registry implements the enclave and cluster registry.
//
// An operator account registers an enclave (its address and API URI) as a
// pending registration. An administrator assigns the registration to a
// cluster with free capacity, which promotes it to an assigned enclave. An
// assigned enclave may request an update of its identity (applied by an
// administrator through ForceUpdateEnclave) or an unregistration, which joins
// a bounded global queue processed by RemoveEnclave.
//
// Enclave addresses are unique among assigned enclaves. Pending
// registrations may collide; uniqueness is enforced at assignment and at
// forced update. The address->operator and operator->cluster lookups are
// secondary indexes updated in the same call as the primary records.
//
// Cluster ids start at zero and are never reused. A cluster can only be
// removed once empty.
package registry
