// Package httpserver serves the ledger over HTTP.
//
// Queries are public GET routes under /api. Operations are POST routes
// authenticated by a signature of the calling account (see package api);
// routes under /api/admin additionally require the caller to be a ledger
// admin, and the shard acknowledgement routes take the caller to be the
// enclave. Rejections are answered with an api.ErrorResponse naming the
// rejection, with a status derived from its class.
//
// The server also exposes /livez, /readyz, /drain and /undrain for load
// balancer integration and, optionally, pprof under /debug.
package httpserver
