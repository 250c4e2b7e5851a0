package items

import "github.com/ruteri/tee-capsule-ledger/interfaces"

// guard rejects an operation with err when forbids holds for the item.
type guard struct {
	forbids func(*Item) bool
	err     error
}

func marked(m Marker) func(*Item) bool {
	return func(it *Item) bool { return it.markers.Has(m) }
}

func syncing(kind interfaces.PayloadKind) func(*Item) bool {
	return func(it *Item) bool { return it.IsSyncing(kind) }
}

var (
	listed         = marked(MarkerListed)
	delegated      = marked(MarkerDelegated)
	rented         = marked(MarkerRented)
	inTransmission = marked(MarkerInTransmission)
	syncingSecret  = syncing(interfaces.SecretPayload)
	syncingCapsule = syncing(interfaces.CapsulePayload)
)

// soulboundHeld holds for a soulbound item that left its creator.
func soulboundHeld(it *Item) bool {
	return it.markers.Has(MarkerSoulbound) && it.Owner != it.Creator
}

// Guard tables, evaluated in order after the ownership checks.
var (
	burnGuards = []guard{
		{listed, interfaces.ErrCannotBurnListedItems},
		{delegated, interfaces.ErrCannotBurnDelegatedItems},
		{rented, interfaces.ErrCannotBurnRentedItems},
		{inTransmission, interfaces.ErrCannotBurnItemsInTransmission},
	}

	transferGuards = []guard{
		{soulboundHeld, interfaces.ErrCannotTransferSoulboundItems},
		{listed, interfaces.ErrCannotTransferListedItems},
		{delegated, interfaces.ErrCannotTransferDelegatedItems},
		{rented, interfaces.ErrCannotTransferRentedItems},
		{inTransmission, interfaces.ErrCannotTransferItemsInTransmission},
		{syncingSecret, interfaces.ErrCannotTransferNotSyncedSecretItems},
		{syncingCapsule, interfaces.ErrCannotTransferNotSyncedCapsules},
	}

	delegateGuards = []guard{
		{listed, interfaces.ErrCannotDelegateListedItems},
		{rented, interfaces.ErrCannotDelegateRentedItems},
		{syncingSecret, interfaces.ErrCannotDelegateSyncingItems},
		{syncingCapsule, interfaces.ErrCannotDelegateSyncingCapsules},
		{inTransmission, interfaces.ErrCannotDelegateItemsInTransmission},
	}

	royaltyGuards = []guard{
		{listed, interfaces.ErrCannotSetRoyaltyForListedItems},
		{delegated, interfaces.ErrCannotSetRoyaltyForDelegatedItems},
		{rented, interfaces.ErrCannotSetRoyaltyForRentedItems},
		{syncingSecret, interfaces.ErrCannotSetRoyaltyForSyncingItems},
		{syncingCapsule, interfaces.ErrCannotSetRoyaltyForSyncingCapsules},
		{inTransmission, interfaces.ErrCannotSetRoyaltyForItemsInTransmission},
	}

	attachSecretGuards = []guard{
		{listed, interfaces.ErrCannotAddSecretToListedItems},
		{rented, interfaces.ErrCannotAddSecretToRentedItems},
		{delegated, interfaces.ErrCannotAddSecretToDelegatedItems},
		{syncingCapsule, interfaces.ErrCannotAddSecretToSyncingCapsules},
		{inTransmission, interfaces.ErrCannotAddSecretToItemsInTransmission},
	}

	convertGuards = []guard{
		{listed, interfaces.ErrCannotConvertListedItems},
		{rented, interfaces.ErrCannotConvertRentedItems},
		{delegated, interfaces.ErrCannotConvertDelegatedItems},
		{syncingSecret, interfaces.ErrCannotConvertSyncingSecretItems},
		{inTransmission, interfaces.ErrCannotConvertItemsInTransmission},
	}

	capsulePayloadGuards = []guard{
		{listed, interfaces.ErrCannotSetPayloadForListedItems},
		{rented, interfaces.ErrCannotSetPayloadForRentedItems},
		{delegated, interfaces.ErrCannotSetPayloadForDelegatedItems},
		{syncingSecret, interfaces.ErrCannotSetPayloadForSyncingSecretItems},
		{syncingCapsule, interfaces.ErrCannotSetPayloadForSyncingCapsules},
	}

	notifyGuards = []guard{
		{listed, interfaces.ErrCannotNotifyListedItems},
		{rented, interfaces.ErrCannotNotifyRentedItems},
		{delegated, interfaces.ErrCannotNotifyDelegatedItems},
		{syncingSecret, interfaces.ErrCannotNotifySyncingSecretItems},
		{syncingCapsule, interfaces.ErrCannotNotifySyncingCapsules},
		{inTransmission, interfaces.ErrCannotNotifyItemsInTransmission},
	}
)

func checkGuards(it *Item, guards []guard) error {
	for _, g := range guards {
		if g.forbids(it) {
			return g.err
		}
	}
	return nil
}
