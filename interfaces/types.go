package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AccountID identifies owners, creators, operators and enclaves.
type AccountID = ethcommon.Address

// NewAccountIDFromHex parses a 40-char hex address, with or without 0x prefix.
func NewAccountIDFromHex(source string) (AccountID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 40 {
		return AccountID{}, errors.New("invalid account ID length: hex string must be 40 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return AccountID{}, fmt.Errorf("invalid hex format: %w", err)
	}
	return ethcommon.BytesToAddress(addrBytes), nil
}

type ItemID uint32

type CollectionID uint32

type ClusterID uint32

func (id ItemID) String() string       { return strconv.FormatUint(uint64(id), 10) }
func (id CollectionID) String() string { return strconv.FormatUint(uint64(id), 10) }
func (id ClusterID) String() string    { return strconv.FormatUint(uint64(id), 10) }

// ParseItemID parses a decimal item id as used in API paths.
func ParseItemID(s string) (ItemID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid item id %q: %w", s, err)
	}
	return ItemID(v), nil
}

func ParseCollectionID(s string) (CollectionID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid collection id %q: %w", s, err)
	}
	return CollectionID(v), nil
}

func ParseClusterID(s string) (ClusterID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid cluster id %q: %w", s, err)
	}
	return ClusterID(v), nil
}

// Balance is an amount of the ledger's native currency.
type Balance uint64

// Permill is a parts-per-million fraction, 0..=PermillOne.
type Permill uint32

const PermillOne Permill = 1_000_000

// PermillFromPercent converts a whole percentage, clamped to 100.
func PermillFromPercent(pct uint32) Permill {
	if pct > 100 {
		pct = 100
	}
	return Permill(pct * 10_000)
}

func (p Permill) Valid() bool { return p <= PermillOne }

func (p Permill) String() string {
	return fmt.Sprintf("%d.%04d%%", p/10_000, p%10_000)
}

// OffchainData is an opaque reference to data stored outside the ledger.
// It is encoded as 0x-prefixed hex.
type OffchainData []byte

func (d OffchainData) MarshalText() ([]byte, error) {
	return hexutil.Bytes(d).MarshalText()
}

// UnmarshalText decodes 0x-prefixed hex; "0x" decodes to nil.
func (d *OffchainData) UnmarshalText(input []byte) error {
	var b hexutil.Bytes
	if err := b.UnmarshalText(input); err != nil {
		return err
	}
	if len(b) == 0 {
		*d = nil
		return nil
	}
	*d = OffchainData(b)
	return nil
}

// PayloadKind distinguishes the two confidential payload flavours.
type PayloadKind int

const (
	SecretPayload PayloadKind = iota
	CapsulePayload
)

func (k PayloadKind) String() string {
	switch k {
	case SecretPayload:
		return "secret"
	case CapsulePayload:
		return "capsule"
	default:
		return "unknown"
	}
}

// MarshalText lets payload kinds appear as readable JSON keys and values.
func (k PayloadKind) MarshalText() ([]byte, error) {
	switch k {
	case SecretPayload, CapsulePayload:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("unknown payload kind %d", int(k))
	}
}

func (k *PayloadKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "secret":
		*k = SecretPayload
	case "capsule":
		*k = CapsulePayload
	default:
		return fmt.Errorf("unknown payload kind %q", string(text))
	}
	return nil
}

// Balances is the account ledger consulted for fee collection.
type Balances interface {
	// Debit removes amount from account. With keepAlive set the debit is
	// refused if it would leave the account below the existential deposit.
	Debit(account AccountID, amount Balance, keepAlive bool) error
}

// EventSink receives domain events of a successful operation.
type EventSink interface {
	Emit(event Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(event Event) { f(event) }

// DiscardEvents drops every event.
var DiscardEvents EventSink = EventSinkFunc(func(Event) {})
