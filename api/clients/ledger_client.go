package clients

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/tee-capsule-ledger/api"
	"github.com/ruteri/tee-capsule-ledger/collection"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/ruteri/tee-capsule-ledger/items"
	"github.com/ruteri/tee-capsule-ledger/ledger"
	"github.com/ruteri/tee-capsule-ledger/registry"
	"github.com/ruteri/tee-capsule-ledger/shardsync"
	"go.uber.org/atomic"
)

// APIError is a non-2xx answer of the ledger API.
type APIError struct {
	StatusCode int
	api.ErrorResponse
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.ErrorResponse.Error, e.StatusCode, e.Message)
}

// Is matches the ledger sentinel with the same rejection name.
func (e *APIError) Is(target error) bool {
	var le *interfaces.LedgerError
	return errors.As(target, &le) && le.Name == e.ErrorResponse.Error
}

// LedgerClient calls the ledger API on behalf of one account.
type LedgerClient struct {
	baseURL    string
	key        *ecdsa.PrivateKey
	account    interfaces.AccountID
	httpClient *http.Client
	nonce      atomic.Uint64
}

// NewLedgerClient creates a client. key may be nil for a query-only client.
func NewLedgerClient(baseURL string, key *ecdsa.PrivateKey, timeout ...time.Duration) *LedgerClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	c := &LedgerClient{
		baseURL:    baseURL,
		key:        key,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
	if key != nil {
		c.account = crypto.PubkeyToAddress(key.PublicKey)
	}
	c.nonce.Store(uint64(time.Now().UnixNano()))
	return c
}

// Account is the address requests are signed for.
func (c *LedgerClient) Account() interfaces.AccountID { return c.account }

func (c *LedgerClient) do(ctx context.Context, method, path string, reqBody, out any) error {
	var body []byte
	if reqBody != nil {
		var err error
		if body, err = json.Marshal(reqBody); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if method == http.MethodPost {
		if c.key == nil {
			return errors.New("client has no signing key")
		}
		nonce := c.nonce.Inc()
		sig, err := api.SignRequest(c.key, method, req.URL.Path, nonce, body)
		if err != nil {
			return fmt.Errorf("failed to sign request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(api.AccountHeader, c.account.Hex())
		req.Header.Set(api.NonceHeader, strconv.FormatUint(nonce, 10))
		req.Header.Set(api.SignatureHeader, "0x"+hex.EncodeToString(sig))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(raw, &apiErr.ErrorResponse); err != nil {
			apiErr.ErrorResponse = api.ErrorResponse{Error: http.StatusText(resp.StatusCode), Message: string(raw)}
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *LedgerClient) post(ctx context.Context, path string, reqBody any) (ledger.Receipt, error) {
	var receipt ledger.Receipt
	err := c.do(ctx, http.MethodPost, path, reqBody, &receipt)
	return receipt, err
}

func itemPath(id interfaces.ItemID, op string) string {
	return "/api/items/" + id.String() + "/" + op
}

func collectionPath(id interfaces.CollectionID, op string) string {
	return "/api/collections/" + id.String() + "/" + op
}

func adminEnclavePath(operator interfaces.AccountID, op string) string {
	return "/api/admin/enclaves/" + operator.Hex() + "/" + op
}

// Queries

func (c *LedgerClient) Item(ctx context.Context, id interfaces.ItemID) (api.ItemResponse, error) {
	var resp api.ItemResponse
	err := c.do(ctx, http.MethodGet, "/api/items/"+id.String(), nil, &resp)
	return resp, err
}

func (c *LedgerClient) SyncSession(ctx context.Context, id interfaces.ItemID, kind interfaces.PayloadKind) (shardsync.Session, error) {
	var resp shardsync.Session
	err := c.do(ctx, http.MethodGet, itemPath(id, "sync/"+kind.String()), nil, &resp)
	return resp, err
}

func (c *LedgerClient) ItemsOf(ctx context.Context, account interfaces.AccountID) ([]interfaces.ItemID, error) {
	var resp []interfaces.ItemID
	err := c.do(ctx, http.MethodGet, "/api/accounts/"+account.Hex()+"/items", nil, &resp)
	return resp, err
}

func (c *LedgerClient) Balance(ctx context.Context, account interfaces.AccountID) (interfaces.Balance, error) {
	var resp api.BalanceResponse
	err := c.do(ctx, http.MethodGet, "/api/accounts/"+account.Hex()+"/balance", nil, &resp)
	return resp.Balance, err
}

func (c *LedgerClient) Collection(ctx context.Context, id interfaces.CollectionID) (collection.Collection, error) {
	var resp collection.Collection
	err := c.do(ctx, http.MethodGet, "/api/collections/"+id.String(), nil, &resp)
	return resp, err
}

func (c *LedgerClient) Clusters(ctx context.Context) ([]registry.Cluster, error) {
	var resp []registry.Cluster
	err := c.do(ctx, http.MethodGet, "/api/clusters", nil, &resp)
	return resp, err
}

func (c *LedgerClient) EnclaveStatus(ctx context.Context, operator interfaces.AccountID) (ledger.EnclaveStatus, error) {
	var resp ledger.EnclaveStatus
	err := c.do(ctx, http.MethodGet, "/api/enclaves/"+operator.Hex(), nil, &resp)
	return resp, err
}

func (c *LedgerClient) Unregistrations(ctx context.Context) ([]interfaces.AccountID, error) {
	var resp []interfaces.AccountID
	err := c.do(ctx, http.MethodGet, "/api/unregistrations", nil, &resp)
	return resp, err
}

func (c *LedgerClient) Fees(ctx context.Context) (items.Fees, error) {
	var resp items.Fees
	err := c.do(ctx, http.MethodGet, "/api/fees", nil, &resp)
	return resp, err
}

// Events returns committed events after sequence number since.
func (c *LedgerClient) Events(ctx context.Context, since uint64, limit int) (api.EventsResponse, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatUint(since, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp api.EventsResponse
	err := c.do(ctx, http.MethodGet, "/api/events?"+q.Encode(), nil, &resp)
	return resp, err
}

// Item operations

// Mint creates an item, with a secret attached when req.Secret is set.
func (c *LedgerClient) Mint(ctx context.Context, req api.MintRequest) (api.MintResponse, error) {
	var resp api.MintResponse
	err := c.do(ctx, http.MethodPost, "/api/items", req, &resp)
	return resp, err
}

func (c *LedgerClient) Burn(ctx context.Context, id interfaces.ItemID) (ledger.Receipt, error) {
	return c.post(ctx, itemPath(id, "burn"), nil)
}

func (c *LedgerClient) Transfer(ctx context.Context, id interfaces.ItemID, recipient interfaces.AccountID) (ledger.Receipt, error) {
	return c.post(ctx, itemPath(id, "transfer"), api.TransferRequest{Recipient: recipient})
}

// Delegate sets the viewer of an item; a nil viewer clears the delegation.
func (c *LedgerClient) Delegate(ctx context.Context, id interfaces.ItemID, viewer *interfaces.AccountID) (ledger.Receipt, error) {
	return c.post(ctx, itemPath(id, "delegate"), api.DelegateRequest{Viewer: viewer})
}

func (c *LedgerClient) SetRoyalty(ctx context.Context, id interfaces.ItemID, royalty interfaces.Permill) (ledger.Receipt, error) {
	return c.post(ctx, itemPath(id, "royalty"), api.RoyaltyRequest{Royalty: royalty})
}

func (c *LedgerClient) AddItemToCollection(ctx context.Context, id interfaces.ItemID, collectionID interfaces.CollectionID) (ledger.Receipt, error) {
	return c.post(ctx, itemPath(id, "collection"), api.AddToCollectionRequest{CollectionID: collectionID})
}

func (c *LedgerClient) AttachSecret(ctx context.Context, id interfaces.ItemID, data interfaces.OffchainData) (ledger.Receipt, error) {
	return c.post(ctx, itemPath(id, "secret"), api.OffchainDataRequest{OffchainData: data})
}

func (c *LedgerClient) ConvertToCapsule(ctx context.Context, id interfaces.ItemID, data interfaces.OffchainData) (ledger.Receipt, error) {
	return c.post(ctx, itemPath(id, "capsule"), api.OffchainDataRequest{OffchainData: data})
}

func (c *LedgerClient) SetCapsulePayload(ctx context.Context, id interfaces.ItemID, data interfaces.OffchainData) (ledger.Receipt, error) {
	return c.post(ctx, itemPath(id, "capsule/payload"), api.OffchainDataRequest{OffchainData: data})
}

func (c *LedgerClient) NotifyKeyUpdate(ctx context.Context, id interfaces.ItemID) (ledger.Receipt, error) {
	return c.post(ctx, itemPath(id, "capsule/key-update"), nil)
}

// AddShard acknowledges, as an enclave, that this client's enclave holds
// its shard of the item's payload.
func (c *LedgerClient) AddShard(ctx context.Context, id interfaces.ItemID, kind interfaces.PayloadKind) (ledger.Receipt, error) {
	return c.post(ctx, itemPath(id, "shards/"+kind.String()), nil)
}

// Collection operations

func (c *LedgerClient) CreateCollection(ctx context.Context, data interfaces.OffchainData, limit *uint32) (api.CreateCollectionResponse, error) {
	var resp api.CreateCollectionResponse
	err := c.do(ctx, http.MethodPost, "/api/collections", api.CreateCollectionRequest{OffchainData: data, Limit: limit}, &resp)
	return resp, err
}

func (c *LedgerClient) BurnCollection(ctx context.Context, id interfaces.CollectionID) (ledger.Receipt, error) {
	return c.post(ctx, collectionPath(id, "burn"), nil)
}

func (c *LedgerClient) CloseCollection(ctx context.Context, id interfaces.CollectionID) (ledger.Receipt, error) {
	return c.post(ctx, collectionPath(id, "close"), nil)
}

func (c *LedgerClient) LimitCollection(ctx context.Context, id interfaces.CollectionID, limit uint32) (ledger.Receipt, error) {
	return c.post(ctx, collectionPath(id, "limit"), api.LimitCollectionRequest{Limit: limit})
}

func (c *LedgerClient) SetCollectionMetadata(ctx context.Context, id interfaces.CollectionID, data interfaces.OffchainData) (ledger.Receipt, error) {
	return c.post(ctx, collectionPath(id, "metadata"), api.OffchainDataRequest{OffchainData: data})
}

// Enclave operations, signed by the operator.

func (c *LedgerClient) RegisterEnclave(ctx context.Context, enclave interfaces.AccountID, apiURI string) (ledger.Receipt, error) {
	return c.post(ctx, "/api/enclaves/register", api.EnclaveRequest{Enclave: enclave, APIURI: apiURI})
}

func (c *LedgerClient) UnregisterEnclave(ctx context.Context) (ledger.Receipt, error) {
	return c.post(ctx, "/api/enclaves/unregister", nil)
}

func (c *LedgerClient) UpdateEnclave(ctx context.Context, enclave interfaces.AccountID, apiURI string) (ledger.Receipt, error) {
	return c.post(ctx, "/api/enclaves/update", api.EnclaveRequest{Enclave: enclave, APIURI: apiURI})
}

func (c *LedgerClient) CancelUpdate(ctx context.Context) (ledger.Receipt, error) {
	return c.post(ctx, "/api/enclaves/cancel-update", nil)
}

// Admin operations

func (c *LedgerClient) CreateCluster(ctx context.Context) (api.CreateClusterResponse, error) {
	var resp api.CreateClusterResponse
	err := c.do(ctx, http.MethodPost, "/api/admin/clusters", nil, &resp)
	return resp, err
}

func (c *LedgerClient) RemoveCluster(ctx context.Context, id interfaces.ClusterID) (ledger.Receipt, error) {
	return c.post(ctx, "/api/admin/clusters/"+id.String()+"/remove", nil)
}

func (c *LedgerClient) AssignEnclave(ctx context.Context, operator interfaces.AccountID, cluster interfaces.ClusterID) (ledger.Receipt, error) {
	return c.post(ctx, adminEnclavePath(operator, "assign"), api.AssignEnclaveRequest{ClusterID: cluster})
}

func (c *LedgerClient) RemoveRegistration(ctx context.Context, operator interfaces.AccountID) (ledger.Receipt, error) {
	return c.post(ctx, adminEnclavePath(operator, "remove-registration"), nil)
}

func (c *LedgerClient) RemoveUpdate(ctx context.Context, operator interfaces.AccountID) (ledger.Receipt, error) {
	return c.post(ctx, adminEnclavePath(operator, "remove-update"), nil)
}

func (c *LedgerClient) RemoveEnclave(ctx context.Context, operator interfaces.AccountID) (ledger.Receipt, error) {
	return c.post(ctx, adminEnclavePath(operator, "remove"), nil)
}

func (c *LedgerClient) ForceUpdateEnclave(ctx context.Context, operator, enclave interfaces.AccountID, apiURI string) (ledger.Receipt, error) {
	return c.post(ctx, adminEnclavePath(operator, "force-update"), api.EnclaveRequest{Enclave: enclave, APIURI: apiURI})
}

func (c *LedgerClient) SetFee(ctx context.Context, kind items.FeeKind, fee interfaces.Balance) (ledger.Receipt, error) {
	return c.post(ctx, "/api/admin/fees", api.SetFeeRequest{Kind: kind, Fee: fee})
}

func (c *LedgerClient) SetItemMarker(ctx context.Context, id interfaces.ItemID, marker items.Marker, on bool) (ledger.Receipt, error) {
	return c.post(ctx, "/api/admin/items/"+id.String()+"/markers", api.MarkerRequest{Marker: marker.String(), Value: on})
}
