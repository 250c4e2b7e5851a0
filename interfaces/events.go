package interfaces

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Event is a domain event emitted by a successful ledger operation.
type Event interface {
	EventName() string
}

// Item events

type ItemCreated struct {
	ItemID       ItemID        `json:"item_id"`
	Owner        AccountID     `json:"owner"`
	OffchainData OffchainData  `json:"offchain_data"`
	Royalty      Permill       `json:"royalty"`
	CollectionID *CollectionID `json:"collection_id,omitempty"`
	IsSoulbound  bool          `json:"is_soulbound"`
	MintFee      Balance       `json:"mint_fee"`
}

type ItemBurned struct {
	ItemID ItemID `json:"item_id"`
}

type ItemTransferred struct {
	ItemID    ItemID    `json:"item_id"`
	Sender    AccountID `json:"sender"`
	Recipient AccountID `json:"recipient"`
}

type ItemDelegated struct {
	ItemID ItemID     `json:"item_id"`
	Viewer *AccountID `json:"viewer,omitempty"`
}

type ItemRoyaltySet struct {
	ItemID  ItemID  `json:"item_id"`
	Royalty Permill `json:"royalty"`
}

type ItemAddedToCollection struct {
	ItemID       ItemID       `json:"item_id"`
	CollectionID CollectionID `json:"collection_id"`
}

// ItemMarkerSet reports a marketplace, rent or transmission hook toggling a marker.
type ItemMarkerSet struct {
	ItemID ItemID `json:"item_id"`
	Marker string `json:"marker"`
	Value  bool   `json:"value"`
}

type SecretAddedToItem struct {
	ItemID       ItemID       `json:"item_id"`
	OffchainData OffchainData `json:"offchain_data"`
	ClusterID    ClusterID    `json:"cluster_id"`
	Fee          Balance      `json:"fee"`
}

type SecretShardAdded struct {
	ItemID  ItemID    `json:"item_id"`
	Enclave AccountID `json:"enclave"`
}

type SecretSynced struct {
	ItemID ItemID `json:"item_id"`
}

type ItemConvertedToCapsule struct {
	ItemID       ItemID       `json:"item_id"`
	OffchainData OffchainData `json:"offchain_data"`
	ClusterID    ClusterID    `json:"cluster_id"`
	Fee          Balance      `json:"fee"`
}

type CapsuleShardAdded struct {
	ItemID  ItemID    `json:"item_id"`
	Enclave AccountID `json:"enclave"`
}

type CapsuleSynced struct {
	ItemID ItemID `json:"item_id"`
}

type CapsuleKeyUpdateNotified struct {
	ItemID    ItemID    `json:"item_id"`
	ClusterID ClusterID `json:"cluster_id"`
}

type CapsulePayloadSet struct {
	ItemID       ItemID       `json:"item_id"`
	OffchainData OffchainData `json:"offchain_data"`
}

type FeeUpdated struct {
	Kind string  `json:"kind"`
	Fee  Balance `json:"fee"`
}

// Collection events

type CollectionCreated struct {
	CollectionID CollectionID `json:"collection_id"`
	Owner        AccountID    `json:"owner"`
	OffchainData OffchainData `json:"offchain_data"`
	Limit        *uint32      `json:"limit,omitempty"`
}

type CollectionBurned struct {
	CollectionID CollectionID `json:"collection_id"`
}

type CollectionClosed struct {
	CollectionID CollectionID `json:"collection_id"`
}

type CollectionLimited struct {
	CollectionID CollectionID `json:"collection_id"`
	Limit        uint32       `json:"limit"`
}

type CollectionMetadataSet struct {
	CollectionID CollectionID `json:"collection_id"`
	OffchainData OffchainData `json:"offchain_data"`
}

// Enclave and cluster events

type EnclaveAddedForRegistration struct {
	Operator AccountID `json:"operator"`
	Enclave  AccountID `json:"enclave"`
	APIURI   string    `json:"api_uri"`
}

type RegistrationRemoved struct {
	Operator AccountID `json:"operator"`
}

type MovedForUnregistration struct {
	Operator AccountID `json:"operator"`
}

type MovedForUpdate struct {
	Operator AccountID `json:"operator"`
	Enclave  AccountID `json:"enclave"`
	APIURI   string    `json:"api_uri"`
}

type UpdateRequestCancelled struct {
	Operator AccountID `json:"operator"`
}

type UpdateRequestRemoved struct {
	Operator AccountID `json:"operator"`
}

type EnclaveAssigned struct {
	Operator  AccountID `json:"operator"`
	ClusterID ClusterID `json:"cluster_id"`
}

type EnclaveRemoved struct {
	Operator AccountID `json:"operator"`
}

type EnclaveUpdated struct {
	Operator AccountID `json:"operator"`
	Enclave  AccountID `json:"enclave"`
	APIURI   string    `json:"api_uri"`
}

type ClusterAdded struct {
	ClusterID ClusterID `json:"cluster_id"`
}

type ClusterRemoved struct {
	ClusterID ClusterID `json:"cluster_id"`
}

func (ItemCreated) EventName() string              { return "ItemCreated" }
func (ItemBurned) EventName() string               { return "ItemBurned" }
func (ItemTransferred) EventName() string          { return "ItemTransferred" }
func (ItemDelegated) EventName() string            { return "ItemDelegated" }
func (ItemRoyaltySet) EventName() string           { return "ItemRoyaltySet" }
func (ItemAddedToCollection) EventName() string    { return "ItemAddedToCollection" }
func (ItemMarkerSet) EventName() string            { return "ItemMarkerSet" }
func (SecretAddedToItem) EventName() string        { return "SecretAddedToItem" }
func (SecretShardAdded) EventName() string         { return "SecretShardAdded" }
func (SecretSynced) EventName() string             { return "SecretSynced" }
func (ItemConvertedToCapsule) EventName() string   { return "ItemConvertedToCapsule" }
func (CapsuleShardAdded) EventName() string        { return "CapsuleShardAdded" }
func (CapsuleSynced) EventName() string            { return "CapsuleSynced" }
func (CapsuleKeyUpdateNotified) EventName() string { return "CapsuleKeyUpdateNotified" }
func (CapsulePayloadSet) EventName() string        { return "CapsulePayloadSet" }
func (FeeUpdated) EventName() string               { return "FeeUpdated" }

func (CollectionCreated) EventName() string     { return "CollectionCreated" }
func (CollectionBurned) EventName() string      { return "CollectionBurned" }
func (CollectionClosed) EventName() string      { return "CollectionClosed" }
func (CollectionLimited) EventName() string     { return "CollectionLimited" }
func (CollectionMetadataSet) EventName() string { return "CollectionMetadataSet" }

func (EnclaveAddedForRegistration) EventName() string { return "EnclaveAddedForRegistration" }
func (RegistrationRemoved) EventName() string         { return "RegistrationRemoved" }
func (MovedForUnregistration) EventName() string      { return "MovedForUnregistration" }
func (MovedForUpdate) EventName() string              { return "MovedForUpdate" }
func (UpdateRequestCancelled) EventName() string      { return "UpdateRequestCancelled" }
func (UpdateRequestRemoved) EventName() string        { return "UpdateRequestRemoved" }
func (EnclaveAssigned) EventName() string             { return "EnclaveAssigned" }
func (EnclaveRemoved) EventName() string              { return "EnclaveRemoved" }
func (EnclaveUpdated) EventName() string              { return "EnclaveUpdated" }
func (ClusterAdded) EventName() string                { return "ClusterAdded" }
func (ClusterRemoved) EventName() string              { return "ClusterRemoved" }

var eventTypes = map[string]reflect.Type{}

func init() {
	for _, e := range []Event{
		ItemCreated{}, ItemBurned{}, ItemTransferred{}, ItemDelegated{}, ItemRoyaltySet{},
		ItemAddedToCollection{}, ItemMarkerSet{}, SecretAddedToItem{}, SecretShardAdded{},
		SecretSynced{}, ItemConvertedToCapsule{}, CapsuleShardAdded{}, CapsuleSynced{},
		CapsuleKeyUpdateNotified{}, CapsulePayloadSet{}, FeeUpdated{},
		CollectionCreated{}, CollectionBurned{}, CollectionClosed{}, CollectionLimited{},
		CollectionMetadataSet{},
		EnclaveAddedForRegistration{}, RegistrationRemoved{}, MovedForUnregistration{},
		MovedForUpdate{}, UpdateRequestCancelled{}, UpdateRequestRemoved{}, EnclaveAssigned{},
		EnclaveRemoved{}, EnclaveUpdated{}, ClusterAdded{}, ClusterRemoved{},
	} {
		eventTypes[e.EventName()] = reflect.TypeOf(e)
	}
}

// DecodeEvent decodes the JSON encoding of the event called name.
func DecodeEvent(name string, data []byte) (Event, error) {
	t, ok := eventTypes[name]
	if !ok {
		return nil, fmt.Errorf("unknown event %q", name)
	}
	v := reflect.New(t)
	if err := json.Unmarshal(data, v.Interface()); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	return v.Elem().Interface().(Event), nil
}
