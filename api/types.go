package api

import (
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/ruteri/tee-capsule-ledger/items"
	"github.com/ruteri/tee-capsule-ledger/ledger"
	"github.com/ruteri/tee-capsule-ledger/shardsync"
)

// MintRequest creates an item owned by the caller. When Secret is set the
// item is minted with a secret attached in the same operation.
type MintRequest struct {
	ledger.MintParams
	Secret interfaces.OffchainData `json:"secret,omitempty"`
}

type MintResponse struct {
	ItemID interfaces.ItemID `json:"item_id"`
	ledger.Receipt
}

type TransferRequest struct {
	Recipient interfaces.AccountID `json:"recipient"`
}

// DelegateRequest sets or, with a nil viewer, clears a delegation.
type DelegateRequest struct {
	Viewer *interfaces.AccountID `json:"viewer"`
}

type RoyaltyRequest struct {
	Royalty interfaces.Permill `json:"royalty"`
}

type AddToCollectionRequest struct {
	CollectionID interfaces.CollectionID `json:"collection_id"`
}

type OffchainDataRequest struct {
	OffchainData interfaces.OffchainData `json:"offchain_data"`
}

type MarkerRequest struct {
	Marker string `json:"marker"`
	Value  bool   `json:"value"`
}

type CreateCollectionRequest struct {
	OffchainData interfaces.OffchainData `json:"offchain_data"`
	Limit        *uint32                 `json:"limit,omitempty"`
}

type CreateCollectionResponse struct {
	CollectionID interfaces.CollectionID `json:"collection_id"`
	ledger.Receipt
}

type LimitCollectionRequest struct {
	Limit uint32 `json:"limit"`
}

type EnclaveRequest struct {
	Enclave interfaces.AccountID `json:"enclave"`
	APIURI  string               `json:"api_uri"`
}

type AssignEnclaveRequest struct {
	ClusterID interfaces.ClusterID `json:"cluster_id"`
}

type CreateClusterResponse struct {
	ClusterID interfaces.ClusterID `json:"cluster_id"`
	ledger.Receipt
}

type SetFeeRequest struct {
	Kind items.FeeKind      `json:"kind"`
	Fee  interfaces.Balance `json:"fee"`
}

// ItemResponse is an item with its delegation and payload references.
type ItemResponse struct {
	Item      items.Item               `json:"item"`
	Viewer    *interfaces.AccountID    `json:"viewer,omitempty"`
	Secret    *interfaces.OffchainData `json:"secret,omitempty"`
	Capsule   *interfaces.OffchainData `json:"capsule,omitempty"`
	SyncState *shardsync.Session       `json:"sync_session,omitempty"`
}

type BalanceResponse struct {
	Account interfaces.AccountID `json:"account"`
	Balance interfaces.Balance   `json:"balance"`
}

type EventsResponse struct {
	LastSeq uint64          `json:"last_seq"`
	Events  []ledger.Record `json:"events"`
}

// ErrorResponse carries the rejection name of a failed operation.
type ErrorResponse struct {
	Error   string `json:"error"`
	Class   string `json:"class,omitempty"`
	Message string `json:"message"`
}
