package items

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/ruteri/tee-capsule-ledger/interfaces"
)

// Phase is the payload hand-off state of an item. An item hands off at most
// one payload at a time.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseAwaitingSecretSync
	PhaseAwaitingCapsuleSync
)

var phaseNames = map[Phase]string{
	PhaseIdle:                "idle",
	PhaseAwaitingSecretSync:  "awaiting_secret_sync",
	PhaseAwaitingCapsuleSync: "awaiting_capsule_sync",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	if _, ok := phaseNames[p]; !ok {
		return nil, fmt.Errorf("unknown phase %d", uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(text))
}

func syncPhase(kind interfaces.PayloadKind) Phase {
	if kind == interfaces.CapsulePayload {
		return PhaseAwaitingCapsuleSync
	}
	return PhaseAwaitingSecretSync
}

// Marker is an access marker restricting what can be done with an item.
type Marker uint8

const (
	MarkerListed Marker = 1 << iota
	MarkerDelegated
	MarkerRented
	MarkerInTransmission
	MarkerSoulbound
)

var markerNames = []struct {
	m    Marker
	name string
}{
	{MarkerListed, "listed"},
	{MarkerDelegated, "delegated"},
	{MarkerRented, "rented"},
	{MarkerInTransmission, "in_transmission"},
	{MarkerSoulbound, "soulbound"},
}

func (m Marker) String() string {
	for _, n := range markerNames {
		if n.m == m {
			return n.name
		}
	}
	return fmt.Sprintf("marker(%d)", uint8(m))
}

// ParseMarker resolves a marker name.
func ParseMarker(name string) (Marker, error) {
	for _, n := range markerNames {
		if n.name == name {
			return n.m, nil
		}
	}
	return 0, fmt.Errorf("unknown marker %q", name)
}

// Markers is a set of access markers.
type Markers uint8

func (s Markers) Has(m Marker) bool { return s&Markers(m) != 0 }

func (s Markers) With(m Marker) Markers { return s | Markers(m) }

func (s Markers) Without(m Marker) Markers { return s &^ Markers(m) }

func (s Markers) Set(m Marker, on bool) Markers {
	if on {
		return s.With(m)
	}
	return s.Without(m)
}

func (s Markers) Names() []string {
	names := []string{}
	for _, n := range markerNames {
		if s.Has(n.m) {
			names = append(names, n.name)
		}
	}
	return names
}

func (s Markers) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

func (s *Markers) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var out Markers
	for _, name := range names {
		m, err := ParseMarker(name)
		if err != nil {
			return err
		}
		out = out.With(m)
	}
	*s = out
	return nil
}

// Flags is the flat boolean view of an item's state.
type Flags struct {
	IsCapsule        bool `json:"is_capsule"`
	IsListed         bool `json:"is_listed"`
	IsSecret         bool `json:"is_secret"`
	IsDelegated      bool `json:"is_delegated"`
	IsSoulbound      bool `json:"is_soulbound"`
	IsSyncingSecret  bool `json:"is_syncing_secret"`
	IsRented         bool `json:"is_rented"`
	IsSyncingCapsule bool `json:"is_syncing_capsule"`
	IsInTransmission bool `json:"is_in_transmission"`
}

// Item is a minted item. Its state is a phase, a marker set and the set of
// payload kinds it carries; the syncing phase of a kind can only be entered
// together with that kind's payload.
type Item struct {
	ID           interfaces.ItemID
	Owner        interfaces.AccountID
	Creator      interfaces.AccountID
	Royalty      interfaces.Permill
	CollectionID *interfaces.CollectionID
	OffchainData interfaces.OffchainData

	markers  Markers
	payloads []interfaces.PayloadKind
	phase    Phase
}

// Phase reports whether the item is idle or handing off a payload.
func (it Item) Phase() Phase { return it.phase }

// Markers returns the externally toggled markers.
func (it Item) Markers() Markers { return it.markers }

func (it Item) Has(m Marker) bool { return it.markers.Has(m) }

// HasPayload reports whether a payload of kind is attached.
func (it Item) HasPayload(kind interfaces.PayloadKind) bool {
	return slices.Contains(it.payloads, kind)
}

// IsSyncing reports whether the item is handing off its payload of kind.
func (it Item) IsSyncing(kind interfaces.PayloadKind) bool {
	return it.phase == syncPhase(kind)
}

// beginSync attaches a payload kind and enters its syncing phase.
func (it *Item) beginSync(kind interfaces.PayloadKind) {
	if !it.HasPayload(kind) {
		it.payloads = append(it.payloads, kind)
		slices.Sort(it.payloads)
	}
	it.phase = syncPhase(kind)
}

// finishSync leaves the syncing phase of kind, if the item is in it.
func (it *Item) finishSync(kind interfaces.PayloadKind) {
	if it.IsSyncing(kind) {
		it.phase = PhaseIdle
	}
}

// Flags projects the item onto the flat boolean view exposed by queries.
func (it Item) Flags() Flags {
	return Flags{
		IsCapsule:        it.HasPayload(interfaces.CapsulePayload),
		IsListed:         it.markers.Has(MarkerListed),
		IsSecret:         it.HasPayload(interfaces.SecretPayload),
		IsDelegated:      it.markers.Has(MarkerDelegated),
		IsSoulbound:      it.markers.Has(MarkerSoulbound),
		IsSyncingSecret:  it.IsSyncing(interfaces.SecretPayload),
		IsRented:         it.markers.Has(MarkerRented),
		IsSyncingCapsule: it.IsSyncing(interfaces.CapsulePayload),
		IsInTransmission: it.markers.Has(MarkerInTransmission),
	}
}

func (it Item) clone() Item {
	it.OffchainData = slices.Clone(it.OffchainData)
	it.payloads = slices.Clone(it.payloads)
	if it.CollectionID != nil {
		id := *it.CollectionID
		it.CollectionID = &id
	}
	return it
}

type itemJSON struct {
	ID           interfaces.ItemID        `json:"id"`
	Owner        interfaces.AccountID     `json:"owner"`
	Creator      interfaces.AccountID     `json:"creator"`
	Royalty      interfaces.Permill       `json:"royalty"`
	CollectionID *interfaces.CollectionID `json:"collection_id,omitempty"`
	OffchainData interfaces.OffchainData  `json:"offchain_data"`
	Phase        Phase                    `json:"phase"`
	Markers      Markers                  `json:"markers"`
	Payloads     []interfaces.PayloadKind `json:"payloads"`
	Flags        *Flags                   `json:"flags,omitempty"`
}

func (it Item) MarshalJSON() ([]byte, error) {
	flags := it.Flags()
	payloads := it.payloads
	if payloads == nil {
		payloads = []interfaces.PayloadKind{}
	}
	return json.Marshal(itemJSON{
		ID:           it.ID,
		Owner:        it.Owner,
		Creator:      it.Creator,
		Royalty:      it.Royalty,
		CollectionID: it.CollectionID,
		OffchainData: it.OffchainData,
		Phase:        it.phase,
		Markers:      it.markers,
		Payloads:     payloads,
		Flags:        &flags,
	})
}

// UnmarshalJSON rejects states where a syncing phase has no payload.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw itemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Item{
		ID:           raw.ID,
		Owner:        raw.Owner,
		Creator:      raw.Creator,
		Royalty:      raw.Royalty,
		CollectionID: raw.CollectionID,
		OffchainData: raw.OffchainData,
		markers:      raw.Markers,
		phase:        raw.Phase,
	}
	for _, kind := range raw.Payloads {
		if !out.HasPayload(kind) {
			out.payloads = append(out.payloads, kind)
		}
	}
	slices.Sort(out.payloads)
	switch out.phase {
	case PhaseAwaitingSecretSync:
		if !out.HasPayload(interfaces.SecretPayload) {
			return fmt.Errorf("item %d: syncing a secret it does not carry", out.ID)
		}
	case PhaseAwaitingCapsuleSync:
		if !out.HasPayload(interfaces.CapsulePayload) {
			return fmt.Errorf("item %d: syncing a capsule it does not carry", out.ID)
		}
	}
	if !out.Royalty.Valid() {
		return fmt.Errorf("item %d: %w", out.ID, interfaces.ErrInvalidRoyalty)
	}
	*it = out
	return nil
}
