package interfaces

import "errors"

// ErrorClass groups rejections so transports can map them uniformly.
type ErrorClass int

const (
	ClassInvalid ErrorClass = iota
	ClassNotFound
	ClassUnauthorized
	ClassGuard
	ClassCapacity
	ClassProtocol
	ClassResource
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNotFound:
		return "not_found"
	case ClassUnauthorized:
		return "unauthorized"
	case ClassGuard:
		return "guard"
	case ClassCapacity:
		return "capacity"
	case ClassProtocol:
		return "protocol"
	case ClassResource:
		return "resource"
	default:
		return "invalid"
	}
}

// LedgerError is a named, classified rejection. Every value below is a
// sentinel compared with errors.Is.
type LedgerError struct {
	Name    string
	Class   ErrorClass
	Message string
}

func (e *LedgerError) Error() string { return e.Message }

func newError(class ErrorClass, name, msg string) *LedgerError {
	return &LedgerError{Name: name, Class: class, Message: msg}
}

// ClassOf returns the class of a ledger rejection, ClassInvalid otherwise.
func ClassOf(err error) ErrorClass {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Class
	}
	return ClassInvalid
}

// NameOf returns the rejection name, or "Other" for foreign errors.
func NameOf(err error) string {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Name
	}
	return "Other"
}

var (
	ErrItemNotFound           = newError(ClassNotFound, "ItemNotFound", "item not found")
	ErrCollectionNotFound     = newError(ClassNotFound, "CollectionNotFound", "collection not found")
	ErrClusterNotFound        = newError(ClassNotFound, "ClusterNotFound", "cluster not found")
	ErrRegistrationNotFound   = newError(ClassNotFound, "RegistrationNotFound", "enclave registration not found")
	ErrUpdateRequestNotFound  = newError(ClassNotFound, "UpdateRequestNotFound", "enclave update request not found")
	ErrEnclaveNotFound        = newError(ClassNotFound, "EnclaveNotFound", "enclave not found")
	ErrClusterIDNotFound      = newError(ClassNotFound, "ClusterIdNotFound", "no cluster recorded for operator")
	ErrUnregistrationNotFound = newError(ClassNotFound, "UnregistrationNotFound", "unregistration request not found")
	ErrSyncSessionNotFound    = newError(ClassNotFound, "SyncSessionNotFound", "no sync session for item")
	ErrFeeKindNotFound        = newError(ClassNotFound, "FeeKindNotFound", "unknown fee kind")
	ErrAccountNotFound        = newError(ClassNotFound, "AccountNotFound", "account not found")
	ErrUnsupportedSnapshot    = newError(ClassInvalid, "UnsupportedSnapshot", "snapshot version not supported")
)

var (
	ErrNotTheItemOwner       = newError(ClassUnauthorized, "NotTheItemOwner", "caller is not the item owner")
	ErrNotTheItemCreator     = newError(ClassUnauthorized, "NotTheItemCreator", "caller is not the item creator")
	ErrNotTheCollectionOwner = newError(ClassUnauthorized, "NotTheCollectionOwner", "caller is not the collection owner")
	ErrNotARegisteredEnclave = newError(ClassUnauthorized, "NotARegisteredEnclave", "caller is not an assigned enclave")
	ErrBadOrigin             = newError(ClassUnauthorized, "BadOrigin", "operation requires an administrative caller")
)

// Item guard violations, one per forbidden flag combination.
var (
	ErrCannotBurnListedItems         = newError(ClassGuard, "CannotBurnListedItems", "cannot burn a listed item")
	ErrCannotBurnDelegatedItems      = newError(ClassGuard, "CannotBurnDelegatedItems", "cannot burn a delegated item")
	ErrCannotBurnRentedItems         = newError(ClassGuard, "CannotBurnRentedItems", "cannot burn a rented item")
	ErrCannotBurnItemsInTransmission = newError(ClassGuard, "CannotBurnItemsInTransmission", "cannot burn an item in transmission")

	ErrCannotTransferSoulboundItems       = newError(ClassGuard, "CannotTransferSoulboundItems", "soulbound items can only be transferred by their creator")
	ErrCannotTransferListedItems          = newError(ClassGuard, "CannotTransferListedItems", "cannot transfer a listed item")
	ErrCannotTransferDelegatedItems       = newError(ClassGuard, "CannotTransferDelegatedItems", "cannot transfer a delegated item")
	ErrCannotTransferRentedItems          = newError(ClassGuard, "CannotTransferRentedItems", "cannot transfer a rented item")
	ErrCannotTransferItemsInTransmission  = newError(ClassGuard, "CannotTransferItemsInTransmission", "cannot transfer an item in transmission")
	ErrCannotTransferNotSyncedSecretItems = newError(ClassGuard, "CannotTransferNotSyncedSecretItems", "cannot transfer a secret item before its shards are synced")
	ErrCannotTransferNotSyncedCapsules    = newError(ClassGuard, "CannotTransferNotSyncedCapsules", "cannot transfer a capsule before its shards are synced")

	ErrCannotDelegateListedItems         = newError(ClassGuard, "CannotDelegateListedItems", "cannot delegate a listed item")
	ErrCannotDelegateRentedItems         = newError(ClassGuard, "CannotDelegateRentedItems", "cannot delegate a rented item")
	ErrCannotDelegateSyncingItems        = newError(ClassGuard, "CannotDelegateSyncingItems", "cannot delegate an item while its secret is syncing")
	ErrCannotDelegateSyncingCapsules     = newError(ClassGuard, "CannotDelegateSyncingCapsules", "cannot delegate a capsule while it is syncing")
	ErrCannotDelegateItemsInTransmission = newError(ClassGuard, "CannotDelegateItemsInTransmission", "cannot delegate an item in transmission")

	ErrCannotSetRoyaltyForListedItems         = newError(ClassGuard, "CannotSetRoyaltyForListedItems", "cannot set royalty of a listed item")
	ErrCannotSetRoyaltyForDelegatedItems      = newError(ClassGuard, "CannotSetRoyaltyForDelegatedItems", "cannot set royalty of a delegated item")
	ErrCannotSetRoyaltyForRentedItems         = newError(ClassGuard, "CannotSetRoyaltyForRentedItems", "cannot set royalty of a rented item")
	ErrCannotSetRoyaltyForSyncingItems        = newError(ClassGuard, "CannotSetRoyaltyForSyncingItems", "cannot set royalty while a secret is syncing")
	ErrCannotSetRoyaltyForSyncingCapsules     = newError(ClassGuard, "CannotSetRoyaltyForSyncingCapsules", "cannot set royalty while a capsule is syncing")
	ErrCannotSetRoyaltyForItemsInTransmission = newError(ClassGuard, "CannotSetRoyaltyForItemsInTransmission", "cannot set royalty of an item in transmission")

	ErrCannotAddSecretToListedItems         = newError(ClassGuard, "CannotAddSecretToListedItems", "cannot add a secret to a listed item")
	ErrCannotAddSecretToRentedItems         = newError(ClassGuard, "CannotAddSecretToRentedItems", "cannot add a secret to a rented item")
	ErrCannotAddSecretToDelegatedItems      = newError(ClassGuard, "CannotAddSecretToDelegatedItems", "cannot add a secret to a delegated item")
	ErrCannotAddSecretToSyncingCapsules     = newError(ClassGuard, "CannotAddSecretToSyncingCapsules", "cannot add a secret to a capsule that is syncing")
	ErrCannotAddSecretToItemsInTransmission = newError(ClassGuard, "CannotAddSecretToItemsInTransmission", "cannot add a secret to an item in transmission")

	ErrCannotConvertListedItems         = newError(ClassGuard, "CannotConvertListedItems", "cannot convert a listed item to a capsule")
	ErrCannotConvertRentedItems         = newError(ClassGuard, "CannotConvertRentedItems", "cannot convert a rented item to a capsule")
	ErrCannotConvertDelegatedItems      = newError(ClassGuard, "CannotConvertDelegatedItems", "cannot convert a delegated item to a capsule")
	ErrCannotConvertSyncingSecretItems  = newError(ClassGuard, "CannotConvertSyncingSecretItems", "cannot convert an item while its secret is syncing")
	ErrCannotConvertItemsInTransmission = newError(ClassGuard, "CannotConvertItemsInTransmission", "cannot convert an item in transmission")

	ErrCannotSetPayloadForListedItems        = newError(ClassGuard, "CannotSetPayloadForListedItems", "cannot change the capsule payload of a listed item")
	ErrCannotSetPayloadForRentedItems        = newError(ClassGuard, "CannotSetPayloadForRentedItems", "cannot change the capsule payload of a rented item")
	ErrCannotSetPayloadForDelegatedItems     = newError(ClassGuard, "CannotSetPayloadForDelegatedItems", "cannot change the capsule payload of a delegated item")
	ErrCannotSetPayloadForSyncingSecretItems = newError(ClassGuard, "CannotSetPayloadForSyncingSecretItems", "cannot change the capsule payload while a secret is syncing")
	ErrCannotSetPayloadForSyncingCapsules    = newError(ClassGuard, "CannotSetPayloadForSyncingCapsules", "cannot change the capsule payload while the capsule is syncing")

	ErrCannotNotifyListedItems         = newError(ClassGuard, "CannotNotifyListedItems", "cannot notify a key update for a listed item")
	ErrCannotNotifyRentedItems         = newError(ClassGuard, "CannotNotifyRentedItems", "cannot notify a key update for a rented item")
	ErrCannotNotifyDelegatedItems      = newError(ClassGuard, "CannotNotifyDelegatedItems", "cannot notify a key update for a delegated item")
	ErrCannotNotifySyncingSecretItems  = newError(ClassGuard, "CannotNotifySyncingSecretItems", "cannot notify a key update while a secret is syncing")
	ErrCannotNotifySyncingCapsules     = newError(ClassGuard, "CannotNotifySyncingCapsules", "cannot notify a key update while the capsule is syncing")
	ErrCannotNotifyItemsInTransmission = newError(ClassGuard, "CannotNotifyItemsInTransmission", "cannot notify a key update for an item in transmission")

	ErrItemIsAlreadySecret  = newError(ClassGuard, "ItemIsAlreadySecret", "item already carries a secret")
	ErrItemIsAlreadyCapsule = newError(ClassGuard, "ItemIsAlreadyCapsule", "item is already a capsule")
	ErrItemIsNotCapsule     = newError(ClassGuard, "ItemIsNotCapsule", "item is not a capsule")
	ErrItemIsNotSecret      = newError(ClassGuard, "ItemIsNotSecret", "item is not a secret")
)

var (
	ErrShardNotFromValidCluster = newError(ClassProtocol, "ShardNotFromValidCluster", "enclave does not belong to the cluster of the sync session")
	ErrEnclaveAlreadyAddedShard = newError(ClassProtocol, "EnclaveAlreadyAddedShard", "enclave already acknowledged this payload")
	ErrItemAlreadySynced        = newError(ClassProtocol, "ItemAlreadySynced", "no sync session is open for this item")
)

var (
	ErrCollectionIsClosed                    = newError(ClassCapacity, "CollectionIsClosed", "collection is closed")
	ErrCollectionHasReachedLimit             = newError(ClassCapacity, "CollectionHasReachedLimit", "collection has reached its size limit")
	ErrCollectionLimitAlreadySet             = newError(ClassCapacity, "CollectionLimitAlreadySet", "collection limit is already set")
	ErrCollectionLimitExceededMaximumAllowed = newError(ClassCapacity, "CollectionLimitExceededMaximumAllowed", "collection limit exceeds the maximum allowed size")
	ErrCollectionHasTooManyItems             = newError(ClassCapacity, "CollectionHasTooManyItems", "collection already holds more items than the requested limit")
	ErrCollectionIsNotEmpty                  = newError(ClassCapacity, "CollectionIsNotEmpty", "collection is not empty")
	ErrItemBelongToACollection               = newError(ClassCapacity, "ItemBelongToACollection", "item already belongs to a collection")
	ErrClusterIsFull                         = newError(ClassCapacity, "ClusterIsFull", "cluster is full")
	ErrClusterIsNotEmpty                     = newError(ClassCapacity, "ClusterIsNotEmpty", "cluster is not empty")
	ErrEnclaveAddressAlreadyExists           = newError(ClassCapacity, "EnclaveAddressAlreadyExists", "enclave address is already assigned")
	ErrRegistrationAlreadyExists             = newError(ClassCapacity, "RegistrationAlreadyExists", "operator already has a pending registration")
	ErrOperatorAlreadyExists                 = newError(ClassCapacity, "OperatorAlreadyExists", "operator already has an assigned enclave")
	ErrUpdateRequestAlreadyExists            = newError(ClassCapacity, "UpdateRequestAlreadyExists", "operator already has a pending update")
	ErrUnregistrationAlreadyExists           = newError(ClassCapacity, "UnregistrationAlreadyExists", "operator already has a pending unregistration")
	ErrUnregistrationLimitReached            = newError(ClassCapacity, "UnregistrationLimitReached", "unregistration queue is full")
	ErrNoClusterAvailable                    = newError(ClassCapacity, "NoClusterAvailable", "no cluster with assigned enclaves is available")
	ErrIDsExhausted                          = newError(ClassCapacity, "IDsExhausted", "no identifiers are left to allocate")
)

var (
	ErrOperatorAndEnclaveAreSame            = newError(ClassInvalid, "OperatorAndEnclaveAreSame", "operator cannot use its own account as enclave address")
	ErrUpdateProhibitedForUnassignedEnclave = newError(ClassInvalid, "UpdateProhibitedForUnassignedEnclave", "only assigned enclaves can request an update")
	ErrCannotTransferItemsToYourself        = newError(ClassInvalid, "CannotTransferItemsToYourself", "cannot transfer an item to its current owner")
	ErrCannotDelegateItemsToYourself        = newError(ClassInvalid, "CannotDelegateItemsToYourself", "cannot delegate an item to its owner")
	ErrInvalidRoyalty                       = newError(ClassInvalid, "InvalidRoyalty", "royalty exceeds 100%")
	ErrOffchainDataTooLong                  = newError(ClassInvalid, "OffchainDataTooLong", "offchain data exceeds the maximum length")
	ErrMarkerNotSettable                    = newError(ClassInvalid, "MarkerNotSettable", "marker cannot be set directly")
	ErrAPIURITooLong                        = newError(ClassInvalid, "ApiUriTooLong", "enclave API URI exceeds the maximum length")
)

var (
	ErrInsufficientBalance = newError(ClassResource, "InsufficientBalance", "insufficient balance")
	ErrKeepAlive           = newError(ClassResource, "KeepAlive", "debit would deplete the account below the existential deposit")
)
