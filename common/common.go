// Package common holds process-wide helpers shared by the ledger binaries.
package common

// Version is set at build time via -ldflags "-X github.com/ruteri/tee-capsule-ledger/common.Version=..."
var Version = "dev"

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "capsule_ledger"
