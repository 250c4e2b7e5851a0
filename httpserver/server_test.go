package httpserver

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/tee-capsule-ledger/api"
	"github.com/ruteri/tee-capsule-ledger/api/clients"
	"github.com/ruteri/tee-capsule-ledger/common"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/ruteri/tee-capsule-ledger/items"
	"github.com/ruteri/tee-capsule-ledger/ledger"
	"github.com/ruteri/tee-capsule-ledger/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server  *Server
	ts      *httptest.Server
	ledger  *ledger.Ledger
	metrics *metrics.MetricsServer

	admin, alice, bob *clients.LedgerClient
	enclaves          []*clients.LedgerClient
	aliceKey          *ecdsa.PrivateKey
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func addr(key *ecdsa.PrivateKey) interfaces.AccountID {
	return crypto.PubkeyToAddress(key.PublicKey)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.DiscardHandler)

	adminKey, aliceKey, bobKey := newKey(t), newKey(t), newKey(t)
	enclaveKeys := []*ecdsa.PrivateKey{newKey(t), newKey(t)}

	m, err := metrics.New(common.MetricsNamespace, "")
	require.NoError(t, err)

	cfg := ledger.DefaultConfig()
	cfg.Admins = []interfaces.AccountID{addr(adminKey)}
	l, err := ledger.New(cfg, log, ledger.WithObserver(m))
	require.NoError(t, err)

	cluster, _, err := l.CreateCluster(addr(adminKey))
	require.NoError(t, err)
	for _, key := range enclaveKeys {
		operator := newKey(t)
		_, err = l.RegisterEnclave(addr(operator), addr(key), "https://enclave.example")
		require.NoError(t, err)
		_, err = l.AssignEnclave(addr(adminKey), addr(operator), cluster)
		require.NoError(t, err)
	}
	l.Fund(addr(aliceKey), 1_000)
	l.Fund(addr(bobKey), 1_000)

	srv := New(&api.HTTPServerConfig{
		Log:                      log,
		NonceTTL:                 time.Minute,
		GracefulShutdownDuration: time.Second,
	}, NewHandler(l, NewAuthenticator(time.Minute), log), m)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	f := &fixture{
		server:   srv,
		ts:       ts,
		ledger:   l,
		metrics:  m,
		admin:    clients.NewLedgerClient(ts.URL, adminKey),
		alice:    clients.NewLedgerClient(ts.URL, aliceKey),
		bob:      clients.NewLedgerClient(ts.URL, bobKey),
		aliceKey: aliceKey,
	}
	for _, key := range enclaveKeys {
		f.enclaves = append(f.enclaves, clients.NewLedgerClient(ts.URL, key))
	}
	return f
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var apiErr *clients.APIError
	require.True(t, errors.As(err, &apiErr), "expected an APIError, got %v", err)
	return apiErr.StatusCode
}

func TestSecretLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	minted, err := f.alice.Mint(ctx, api.MintRequest{
		MintParams: ledger.MintParams{OffchainData: []byte("meta")},
		Secret:     []byte("secret"),
	})
	require.NoError(t, err)
	require.Len(t, minted.Events, 2)
	assert.Equal(t, "ItemCreated", minted.Events[0].Name)
	assert.Equal(t, "SecretAddedToItem", minted.Events[1].Name)

	_, err = f.alice.Transfer(ctx, minted.ItemID, f.bob.Account())
	require.ErrorIs(t, err, interfaces.ErrCannotTransferNotSyncedSecretItems)
	assert.Equal(t, http.StatusConflict, statusOf(t, err))

	session, err := f.alice.SyncSession(ctx, minted.ItemID, interfaces.SecretPayload)
	require.NoError(t, err)
	assert.Empty(t, session.AckedBy)

	for _, enclave := range f.enclaves {
		_, err = enclave.AddShard(ctx, minted.ItemID, interfaces.SecretPayload)
		require.NoError(t, err)
	}
	_, err = f.alice.SyncSession(ctx, minted.ItemID, interfaces.SecretPayload)
	require.ErrorIs(t, err, interfaces.ErrSyncSessionNotFound)

	_, err = f.alice.Transfer(ctx, minted.ItemID, f.bob.Account())
	require.NoError(t, err)

	item, err := f.bob.Item(ctx, minted.ItemID)
	require.NoError(t, err)
	assert.Equal(t, f.bob.Account(), item.Item.Owner)
	require.NotNil(t, item.Secret)
	assert.Equal(t, interfaces.OffchainData("secret"), *item.Secret)
	assert.Nil(t, item.SyncState)

	owned, err := f.bob.ItemsOf(ctx, f.bob.Account())
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ItemID{minted.ItemID}, owned)

	balance, err := f.bob.Balance(ctx, f.alice.Account())
	require.NoError(t, err)
	assert.Equal(t, interfaces.Balance(1_000-10-75), balance)

	events, err := f.bob.Events(ctx, 0, 0)
	require.NoError(t, err)
	var names []string
	for _, rec := range events.Events {
		names = append(names, rec.Name)
	}
	assert.Contains(t, names, "SecretSynced")
	assert.Contains(t, names, "ItemTransferred")
	assert.Equal(t, f.ledger.LastSeq(), events.LastSeq)

	synced, ok := events.Events[len(events.Events)-2].Event.(interfaces.SecretSynced)
	require.True(t, ok, "expected SecretSynced, got %T", events.Events[len(events.Events)-2].Event)
	assert.Equal(t, minted.ItemID, synced.ItemID)
}

func TestCollectionsOverHTTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	limit := uint32(1)
	created, err := f.alice.CreateCollection(ctx, []byte("c"), &limit)
	require.NoError(t, err)

	minted, err := f.alice.Mint(ctx, api.MintRequest{MintParams: ledger.MintParams{CollectionID: &created.CollectionID}})
	require.NoError(t, err)

	_, err = f.alice.Mint(ctx, api.MintRequest{MintParams: ledger.MintParams{CollectionID: &created.CollectionID}})
	require.ErrorIs(t, err, interfaces.ErrCollectionHasReachedLimit)

	_, err = f.bob.CloseCollection(ctx, created.CollectionID)
	require.ErrorIs(t, err, interfaces.ErrNotTheCollectionOwner)
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))

	c, err := f.bob.Collection(ctx, created.CollectionID)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ItemID{minted.ItemID}, c.Items)

	_, err = f.alice.BurnCollection(ctx, created.CollectionID)
	require.ErrorIs(t, err, interfaces.ErrCollectionIsNotEmpty)
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.alice.CreateCluster(ctx)
	require.ErrorIs(t, err, interfaces.ErrBadOrigin)
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))

	created, err := f.admin.CreateCluster(ctx)
	require.NoError(t, err)
	clusters, err := f.alice.Clusters(ctx)
	require.NoError(t, err)
	assert.Len(t, clusters, 2)

	_, err = f.admin.SetFee(ctx, items.MintFee, 5)
	require.NoError(t, err)
	fees, err := f.alice.Fees(ctx)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Balance(5), fees.Mint)

	minted, err := f.alice.Mint(ctx, api.MintRequest{})
	require.NoError(t, err)
	_, err = f.admin.SetItemMarker(ctx, minted.ItemID, items.MarkerListed, true)
	require.NoError(t, err)
	_, err = f.alice.Burn(ctx, minted.ItemID)
	require.ErrorIs(t, err, interfaces.ErrCannotBurnListedItems)

	_, err = f.admin.RemoveCluster(ctx, created.ClusterID)
	require.NoError(t, err)
}

func TestEnclaveRoutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	operator := clients.NewLedgerClient(f.ts.URL, newKey(t))
	enclave := newKey(t)

	_, err := operator.RegisterEnclave(ctx, addr(enclave), "https://new.example")
	require.NoError(t, err)
	status, err := f.alice.EnclaveStatus(ctx, operator.Account())
	require.NoError(t, err)
	require.NotNil(t, status.Registration)
	assert.Equal(t, addr(enclave), status.Registration.Address)

	// the only cluster is full
	_, err = f.admin.AssignEnclave(ctx, operator.Account(), 0)
	require.ErrorIs(t, err, interfaces.ErrClusterIsFull)

	_, err = f.admin.RemoveRegistration(ctx, operator.Account())
	require.NoError(t, err)
	_, err = f.alice.EnclaveStatus(ctx, operator.Account())
	require.ErrorIs(t, err, interfaces.ErrEnclaveNotFound)
}

func signedRequest(t *testing.T, key *ecdsa.PrivateKey, path string, nonce uint64, body []byte) *http.Request {
	t.Helper()
	sig, err := api.SignRequest(key, http.MethodPost, path, nonce, body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(api.AccountHeader, addr(key).Hex())
	req.Header.Set(api.NonceHeader, strconv.FormatUint(nonce, 10))
	req.Header.Set(api.SignatureHeader, "0x"+hex.EncodeToString(sig))
	return req
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)
	router := f.server.Router()
	body := []byte(`{"offchain_data":"0x01"}`)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, signedRequest(t, f.aliceKey, "/api/collections", 1, body))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	t.Run("replayed nonce", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, signedRequest(t, f.aliceKey, "/api/collections", 1, body))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("tampered body", func(t *testing.T) {
		req := signedRequest(t, f.aliceKey, "/api/collections", 2, body)
		req.Body = io.NopCloser(bytes.NewReader([]byte(`{"offchain_data":"0x02"}`)))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong account", func(t *testing.T) {
		req := signedRequest(t, f.aliceKey, "/api/collections", 3, body)
		req.Header.Set(api.AccountHeader, f.bob.Account().Hex())
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("missing headers", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/collections", bytes.NewReader(body)))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		bad := []byte(`{"offchain_data":"0x01","owner":"0x00"}`)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, signedRequest(t, f.aliceKey, "/api/collections", 4, bad))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	_, ok := f.ledger.Collection(1)
	assert.False(t, ok, "rejected requests must not create collections")
}

func TestQueryErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.alice.Item(ctx, 999)
	require.ErrorIs(t, err, interfaces.ErrItemNotFound)
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	rr := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/items/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	f.server.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/events?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthAndDrain(t *testing.T) {
	f := newFixture(t)
	router := f.server.Router()

	get := func(path string) int {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, get("/livez"))
	assert.Equal(t, http.StatusOK, get("/readyz"))
	assert.Equal(t, http.StatusOK, get("/drain"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))
	assert.Equal(t, http.StatusOK, get("/undrain"))
	assert.Equal(t, http.StatusOK, get("/readyz"))
}

func TestHTTPMetrics(t *testing.T) {
	f := newFixture(t)

	_, err := f.alice.Item(context.Background(), 42)
	require.Error(t, err)

	rr := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	assert.Contains(t, body, `capsule_ledger_http_requests_total{method="GET",route="/api/items/{id}",status="404"} 1`)
	assert.Contains(t, body, `capsule_ledger_ledger_operations_total{op="create_cluster",result="ok"} 1`)
}
