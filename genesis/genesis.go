// Package genesis loads the TOML file describing a ledger's configuration and
// initial state, and builds the ledger from it.
package genesis

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/ruteri/tee-capsule-ledger/ledger"
)

type Account struct {
	Address interfaces.AccountID `toml:"address"`
	Balance interfaces.Balance   `toml:"balance"`
}

type Enclave struct {
	Operator interfaces.AccountID `toml:"operator"`
	Enclave  interfaces.AccountID `toml:"enclave"`
	APIURI   string               `toml:"api_uri"`
}

// Cluster is created at genesis with its enclaves registered and assigned.
type Cluster struct {
	Enclaves []Enclave `toml:"enclaves"`
}

type Genesis struct {
	Ledger   ledger.Config `toml:"ledger"`
	Accounts []Account     `toml:"accounts"`
	Clusters []Cluster     `toml:"clusters"`
}

// Default is an empty genesis with default configuration.
func Default() Genesis {
	return Genesis{Ledger: ledger.DefaultConfig()}
}

// Load reads a genesis file. Keys absent from the file keep their defaults;
// unknown keys are rejected.
func Load(path string) (Genesis, error) {
	g := Default()
	meta, err := toml.DecodeFile(path, &g)
	if err != nil {
		return Genesis{}, fmt.Errorf("load genesis: %w", err)
	}
	return g, checkUndecoded(meta)
}

// Parse reads a genesis document from a string.
func Parse(doc string) (Genesis, error) {
	g := Default()
	meta, err := toml.Decode(doc, &g)
	if err != nil {
		return Genesis{}, fmt.Errorf("parse genesis: %w", err)
	}
	return g, checkUndecoded(meta)
}

func checkUndecoded(meta toml.MetaData) error {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}
	return fmt.Errorf("unknown genesis keys: %s", strings.Join(keys, ", "))
}

// Encode renders g as TOML.
func (g Genesis) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(g)
}

var errNoAdmin = errors.New("genesis declares clusters but no admin")

// Build creates a ledger holding the genesis state. Genesis events are
// committed to the new ledger's event log.
func (g Genesis) Build(log *slog.Logger, opts ...ledger.Option) (*ledger.Ledger, error) {
	l, err := ledger.New(g.Ledger, log, opts...)
	if err != nil {
		return nil, err
	}
	for _, acct := range g.Accounts {
		l.Fund(acct.Address, acct.Balance)
	}
	if len(g.Clusters) == 0 {
		return l, nil
	}

	admin, err := l.FirstAdmin()
	if err != nil {
		return nil, errNoAdmin
	}
	for i, c := range g.Clusters {
		id, _, err := l.CreateCluster(admin)
		if err != nil {
			return nil, fmt.Errorf("cluster %d: %w", i, err)
		}
		for _, e := range c.Enclaves {
			if _, err := l.RegisterEnclave(e.Operator, e.Enclave, e.APIURI); err != nil {
				return nil, fmt.Errorf("cluster %d: registering %s: %w", i, e.Operator, err)
			}
			if _, err := l.AssignEnclave(admin, e.Operator, id); err != nil {
				return nil, fmt.Errorf("cluster %d: assigning %s: %w", i, e.Operator, err)
			}
		}
	}
	log.Info("genesis applied",
		slog.Int("accounts", len(g.Accounts)),
		slog.Int("clusters", len(g.Clusters)))
	return l, nil
}
