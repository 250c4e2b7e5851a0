package genesis

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `
[ledger]
admins = ["0x000000000000000000000000000000000000ad01"]
quorum = "threshold:1"

[ledger.items.fees]
mint = 5

[[accounts]]
address = "0x00000000000000000000000000000000000a11ce"
balance = 500

[[clusters]]
enclaves = [
  { operator = "0x0000000000000000000000000000000000000901", enclave = "0x000000000000000000000000000000000000e901", api_uri = "https://e1.example" },
  { operator = "0x0000000000000000000000000000000000000902", enclave = "0x000000000000000000000000000000000000e902", api_uri = "https://e2.example" },
]
`

func TestParseKeepsDefaults(t *testing.T) {
	g, err := Parse(doc)
	require.NoError(t, err)

	assert.Equal(t, interfaces.Balance(5), g.Ledger.Items.Fees.Mint)
	assert.Equal(t, Default().Ledger.Items.Fees.Secret, g.Ledger.Items.Fees.Secret)
	assert.Equal(t, Default().Ledger.Registry, g.Ledger.Registry)
	assert.Equal(t, "threshold:1", g.Ledger.Quorum)
	require.Len(t, g.Clusters, 1)
	assert.Len(t, g.Clusters[0].Enclaves, 2)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse("[ledger]\nquorom = \"full\"\n")
	require.ErrorContains(t, err, "ledger.quorom")
}

func TestBuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.toml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	g, err := Load(path)
	require.NoError(t, err)

	l, err := g.Build(slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	alice := common.HexToAddress("0xa11ce")
	assert.Equal(t, interfaces.Balance(500), l.Balance(alice))
	clusters := l.Clusters()
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Operators, 2)
	assert.Equal(t, "threshold:1", strings.TrimSpace(g.Ledger.Quorum))
}

func TestBuildRequiresAdminForClusters(t *testing.T) {
	g := Default()
	g.Clusters = []Cluster{{}}
	_, err := g.Build(slog.New(slog.DiscardHandler))
	require.ErrorIs(t, err, errNoAdmin)
}

func TestEncodeRoundTrip(t *testing.T) {
	g, err := Parse(doc)
	require.NoError(t, err)
	var b strings.Builder
	require.NoError(t, g.Encode(&b))

	again, err := Parse(b.String())
	require.NoError(t, err)
	assert.Equal(t, g, again)
}
