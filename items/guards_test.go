package items

import (
	"fmt"
	"testing"

	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type condition string

const (
	condListed         condition = "listed"
	condDelegated      condition = "delegated"
	condRented         condition = "rented"
	condInTransmission condition = "in_transmission"
	condSyncingSecret  condition = "syncing_secret"
	condSyncingCapsule condition = "syncing_capsule"
)

// establish puts a freshly minted item of alice into cond.
func (f *fixture) establish(t *testing.T, id interfaces.ItemID, cond condition) {
	t.Helper()
	switch cond {
	case condListed:
		require.NoError(t, f.m.SetMarker(id, MarkerListed, true))
	case condRented:
		require.NoError(t, f.m.SetMarker(id, MarkerRented, true))
	case condInTransmission:
		require.NoError(t, f.m.SetMarker(id, MarkerInTransmission, true))
	case condDelegated:
		require.NoError(t, f.m.Delegate(alice, id, &bob))
	case condSyncingSecret:
		require.NoError(t, f.m.AttachSecret(alice, id, interfaces.OffchainData("s")))
	case condSyncingCapsule:
		require.NoError(t, f.m.ConvertToCapsule(alice, id, interfaces.OffchainData("c")))
	}
}

func TestGuardTable(t *testing.T) {
	type op struct {
		run       func(f *fixture, id interfaces.ItemID) error
		forbidden map[condition]error
	}
	ops := map[string]op{
		"burn": {
			run: func(f *fixture, id interfaces.ItemID) error { return f.m.Burn(alice, id) },
			forbidden: map[condition]error{
				condListed:         interfaces.ErrCannotBurnListedItems,
				condDelegated:      interfaces.ErrCannotBurnDelegatedItems,
				condRented:         interfaces.ErrCannotBurnRentedItems,
				condInTransmission: interfaces.ErrCannotBurnItemsInTransmission,
			},
		},
		"transfer": {
			run: func(f *fixture, id interfaces.ItemID) error { return f.m.Transfer(alice, id, charlie) },
			forbidden: map[condition]error{
				condListed:         interfaces.ErrCannotTransferListedItems,
				condDelegated:      interfaces.ErrCannotTransferDelegatedItems,
				condRented:         interfaces.ErrCannotTransferRentedItems,
				condInTransmission: interfaces.ErrCannotTransferItemsInTransmission,
				condSyncingSecret:  interfaces.ErrCannotTransferNotSyncedSecretItems,
				condSyncingCapsule: interfaces.ErrCannotTransferNotSyncedCapsules,
			},
		},
		"delegate": {
			run: func(f *fixture, id interfaces.ItemID) error { return f.m.Delegate(alice, id, &charlie) },
			forbidden: map[condition]error{
				condListed:         interfaces.ErrCannotDelegateListedItems,
				condRented:         interfaces.ErrCannotDelegateRentedItems,
				condSyncingSecret:  interfaces.ErrCannotDelegateSyncingItems,
				condSyncingCapsule: interfaces.ErrCannotDelegateSyncingCapsules,
				condInTransmission: interfaces.ErrCannotDelegateItemsInTransmission,
			},
		},
		"set_royalty": {
			run: func(f *fixture, id interfaces.ItemID) error { return f.m.SetRoyalty(alice, id, 5) },
			forbidden: map[condition]error{
				condListed:         interfaces.ErrCannotSetRoyaltyForListedItems,
				condDelegated:      interfaces.ErrCannotSetRoyaltyForDelegatedItems,
				condRented:         interfaces.ErrCannotSetRoyaltyForRentedItems,
				condSyncingSecret:  interfaces.ErrCannotSetRoyaltyForSyncingItems,
				condSyncingCapsule: interfaces.ErrCannotSetRoyaltyForSyncingCapsules,
				condInTransmission: interfaces.ErrCannotSetRoyaltyForItemsInTransmission,
			},
		},
		"attach_secret": {
			run: func(f *fixture, id interfaces.ItemID) error { return f.m.AttachSecret(alice, id, nil) },
			forbidden: map[condition]error{
				condListed:         interfaces.ErrCannotAddSecretToListedItems,
				condRented:         interfaces.ErrCannotAddSecretToRentedItems,
				condDelegated:      interfaces.ErrCannotAddSecretToDelegatedItems,
				condSyncingCapsule: interfaces.ErrCannotAddSecretToSyncingCapsules,
				condInTransmission: interfaces.ErrCannotAddSecretToItemsInTransmission,
			},
		},
		"convert_to_capsule": {
			run: func(f *fixture, id interfaces.ItemID) error { return f.m.ConvertToCapsule(alice, id, nil) },
			forbidden: map[condition]error{
				condListed:         interfaces.ErrCannotConvertListedItems,
				condRented:         interfaces.ErrCannotConvertRentedItems,
				condDelegated:      interfaces.ErrCannotConvertDelegatedItems,
				condSyncingSecret:  interfaces.ErrCannotConvertSyncingSecretItems,
				condInTransmission: interfaces.ErrCannotConvertItemsInTransmission,
			},
		},
		"set_capsule_payload": {
			run: func(f *fixture, id interfaces.ItemID) error { return f.m.SetCapsulePayload(alice, id, nil) },
			forbidden: map[condition]error{
				condListed:         interfaces.ErrCannotSetPayloadForListedItems,
				condRented:         interfaces.ErrCannotSetPayloadForRentedItems,
				condDelegated:      interfaces.ErrCannotSetPayloadForDelegatedItems,
				condSyncingSecret:  interfaces.ErrCannotSetPayloadForSyncingSecretItems,
				condSyncingCapsule: interfaces.ErrCannotSetPayloadForSyncingCapsules,
			},
		},
		"notify_key_update": {
			run: func(f *fixture, id interfaces.ItemID) error { return f.m.NotifyKeyUpdate(alice, id) },
			forbidden: map[condition]error{
				condListed:         interfaces.ErrCannotNotifyListedItems,
				condRented:         interfaces.ErrCannotNotifyRentedItems,
				condDelegated:      interfaces.ErrCannotNotifyDelegatedItems,
				condSyncingSecret:  interfaces.ErrCannotNotifySyncingSecretItems,
				condSyncingCapsule: interfaces.ErrCannotNotifySyncingCapsules,
				condInTransmission: interfaces.ErrCannotNotifyItemsInTransmission,
			},
		},
	}

	for name, op := range ops {
		for cond, want := range op.forbidden {
			t.Run(fmt.Sprintf("%s/%s", name, cond), func(t *testing.T) {
				f := newFixture(t)
				id := f.mint(t, alice)
				f.establish(t, id, cond)
				before := f.m.State()
				sessions := f.sync.Sessions()
				f.events = nil

				err := op.run(f, id)
				assert.ErrorIs(t, err, want)
				assert.Equal(t, interfaces.ClassGuard, interfaces.ClassOf(err))
				assert.Equal(t, before, f.m.State())
				assert.Equal(t, sessions, f.sync.Sessions())
				assert.Empty(t, f.events)
			})
		}
	}
}

func TestGuardOrderOwnershipFirst(t *testing.T) {
	f := newFixture(t)
	id := f.mint(t, alice)
	f.establish(t, id, condListed)

	assert.ErrorIs(t, f.m.Burn(bob, id), interfaces.ErrNotTheItemOwner)
	assert.ErrorIs(t, f.m.AttachSecret(bob, id, nil), interfaces.ErrNotTheItemOwner)
	// Flag guards are checked before the payload kind.
	assert.ErrorIs(t, f.m.SetCapsulePayload(alice, id, nil), interfaces.ErrCannotSetPayloadForListedItems)
}

// checkInvariants verifies the relations between items and their derived
// records that every reachable state must satisfy.
func checkInvariants(rt *rapid.T, f *fixture) {
	for _, id := range f.m.ItemIDs() {
		it, _ := f.m.Item(id)
		flags := it.Flags()
		if flags.IsSyncingSecret && !flags.IsSecret {
			rt.Fatalf("item %d syncs a secret it does not carry", id)
		}
		if flags.IsSyncingCapsule && !flags.IsCapsule {
			rt.Fatalf("item %d syncs a capsule it is not", id)
		}
		if _, ok := f.m.Delegation(id); ok != flags.IsDelegated {
			rt.Fatalf("item %d delegation record=%v delegated=%v", id, ok, flags.IsDelegated)
		}
		for kind, has := range map[interfaces.PayloadKind]bool{interfaces.SecretPayload: flags.IsSecret, interfaces.CapsulePayload: flags.IsCapsule} {
			if _, ok := f.m.Payload(id, kind); ok != has {
				rt.Fatalf("item %d %s record=%v flag=%v", id, kind, ok, has)
			}
			if _, open := f.sync.Session(id, kind); open != it.IsSyncing(kind) {
				rt.Fatalf("item %d %s session=%v syncing=%v", id, kind, open, it.IsSyncing(kind))
			}
		}
	}
}

func TestStateMachineProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(rt)
		f.bal.Credit(alice, 1_000_000)
		f.bal.Credit(bob, 1_000_000)
		accounts := []AccountID{alice, bob}

		for step := range rapid.IntRange(1, 60).Draw(rt, "steps") {
			caller := rapid.SampledFrom(accounts).Draw(rt, "caller")
			ids := f.m.ItemIDs()
			if len(ids) == 0 || rapid.IntRange(0, 9).Draw(rt, "mint") == 0 {
				if _, err := f.m.Mint(MintRequest{Owner: caller}); err != nil {
					rt.Fatalf("mint: %v", err)
				}
				continue
			}
			id := rapid.SampledFrom(ids).Draw(rt, "item")
			before, _ := f.m.Item(id)
			state, sessions := f.m.State(), f.sync.Sessions()

			var err error
			action := rapid.IntRange(0, 11).Draw(rt, "action")
			switch action {
			case 0:
				err = f.m.Burn(caller, id)
			case 1:
				err = f.m.Transfer(caller, id, rapid.SampledFrom(accounts).Draw(rt, "recipient"))
			case 2:
				other := alice
				if caller == alice {
					other = bob
				}
				var viewer *AccountID
				if !rapid.Bool().Draw(rt, "undelegate") {
					viewer = &other
				}
				err = f.m.Delegate(caller, id, viewer)
			case 3:
				err = f.m.AttachSecret(caller, id, nil)
			case 4:
				err = f.m.ConvertToCapsule(caller, id, nil)
			case 5:
				err = f.m.SetCapsulePayload(caller, id, nil)
			case 6:
				err = f.m.NotifyKeyUpdate(caller, id)
			case 7, 8:
				e := rapid.SampledFrom(enclave).Draw(rt, "enclave")
				if rapid.Bool().Draw(rt, "secret") {
					err = f.m.AddSecretShard(e, id)
				} else {
					err = f.m.AddCapsuleShard(e, id)
				}
			case 9:
				err = f.m.SetRoyalty(caller, id, interfaces.Permill(rapid.Uint32Range(0, 1_000_000).Draw(rt, "royalty")))
			default:
				m := rapid.SampledFrom([]Marker{MarkerListed, MarkerRented, MarkerInTransmission}).Draw(rt, "marker")
				err = f.m.SetMarker(id, m, rapid.Bool().Draw(rt, "on"))
			}

			if err != nil {
				if interfaces.NameOf(err) == "Other" {
					rt.Fatalf("step %d: unnamed rejection %v", step, err)
				}
				assert.Equal(rt, state, f.m.State(), "rejected operations change nothing")
				assert.Equal(rt, sessions, f.sync.Sessions())
			} else if action == 1 {
				bf := before.Flags()
				if bf.IsListed || bf.IsDelegated || bf.IsRented || bf.IsInTransmission {
					rt.Fatalf("transfer succeeded with flags %+v", bf)
				}
			} else if action == 0 {
				if _, ok := f.m.Item(id); ok {
					rt.Fatalf("burned item %d still exists", id)
				}
			}
			checkInvariants(rt, f)
		}
	})
}
