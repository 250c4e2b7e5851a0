package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/tee-capsule-ledger/api"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/ruteri/tee-capsule-ledger/items"
	"github.com/ruteri/tee-capsule-ledger/ledger"
)

const (
	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024

	defaultEventsLimit = 100
	maxEventsLimit     = 1000
)

// Handler maps HTTP requests onto ledger operations and queries.
type Handler struct {
	ledger *ledger.Ledger
	auth   *Authenticator
	log    *slog.Logger
}

func NewHandler(l *ledger.Ledger, auth *Authenticator, log *slog.Logger) *Handler {
	return &Handler{ledger: l, auth: auth, log: log}
}

// signedFunc runs an operation on behalf of an authenticated caller.
type signedFunc func(r *http.Request, caller interfaces.AccountID, body []byte) (any, error)

// Routes mounts every ledger route on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/items/{id}", h.query(h.getItem))
		r.Get("/items/{id}/sync/{kind}", h.query(h.getSyncSession))
		r.Get("/accounts/{account}/items", h.query(h.getAccountItems))
		r.Get("/accounts/{account}/balance", h.query(h.getBalance))
		r.Get("/collections/{id}", h.query(h.getCollection))
		r.Get("/clusters", h.query(h.getClusters))
		r.Get("/clusters/{id}", h.query(h.getCluster))
		r.Get("/enclaves/{operator}", h.query(h.getEnclave))
		r.Get("/unregistrations", h.query(h.getUnregistrations))
		r.Get("/fees", h.query(h.getFees))
		r.Get("/events", h.query(h.getEvents))

		r.Post("/items", h.signed(h.mint))
		r.Post("/items/{id}/burn", h.signed(h.burn))
		r.Post("/items/{id}/transfer", h.signed(h.transfer))
		r.Post("/items/{id}/delegate", h.signed(h.delegate))
		r.Post("/items/{id}/royalty", h.signed(h.setRoyalty))
		r.Post("/items/{id}/collection", h.signed(h.addToCollection))
		r.Post("/items/{id}/secret", h.signed(h.attachSecret))
		r.Post("/items/{id}/capsule", h.signed(h.convertToCapsule))
		r.Post("/items/{id}/capsule/payload", h.signed(h.setCapsulePayload))
		r.Post("/items/{id}/capsule/key-update", h.signed(h.notifyKeyUpdate))
		r.Post("/items/{id}/shards/{kind}", h.signed(h.addShard))

		r.Post("/collections", h.signed(h.createCollection))
		r.Post("/collections/{id}/burn", h.signed(h.burnCollection))
		r.Post("/collections/{id}/close", h.signed(h.closeCollection))
		r.Post("/collections/{id}/limit", h.signed(h.limitCollection))
		r.Post("/collections/{id}/metadata", h.signed(h.setCollectionMetadata))

		r.Post("/enclaves/register", h.signed(h.registerEnclave))
		r.Post("/enclaves/unregister", h.signed(h.unregisterEnclave))
		r.Post("/enclaves/update", h.signed(h.updateEnclave))
		r.Post("/enclaves/cancel-update", h.signed(h.cancelUpdate))

		r.Route("/admin", func(r chi.Router) {
			r.Post("/clusters", h.signed(h.createCluster))
			r.Post("/clusters/{id}/remove", h.signed(h.removeCluster))
			r.Post("/enclaves/{operator}/assign", h.signed(h.assignEnclave))
			r.Post("/enclaves/{operator}/remove-registration", h.signed(h.removeRegistration))
			r.Post("/enclaves/{operator}/remove-update", h.signed(h.removeUpdate))
			r.Post("/enclaves/{operator}/remove", h.signed(h.removeEnclave))
			r.Post("/enclaves/{operator}/force-update", h.signed(h.forceUpdateEnclave))
			r.Post("/fees", h.signed(h.setFee))
			r.Post("/items/{id}/markers", h.signed(h.setMarker))
		})
	})
}

func (h *Handler) query(fn func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := fn(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) signed(fn signedFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			h.fail(w, r, badRequest(fmt.Errorf("failed to read request body: %w", err)))
			return
		}
		caller, err := h.auth.Authenticate(r, body)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp, err := fn(r, caller, body)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err, "method", r.Method, "path", r.URL.Path)
	} else {
		h.log.Debug("Request rejected", "err", err, "status", status, "path", r.URL.Path)
	}
	writeJSON(w, status, resp)
}

func decode[T any](body []byte) (T, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return v, nil
}

func itemParam(r *http.Request) (interfaces.ItemID, error) {
	id, err := interfaces.ParseItemID(chi.URLParam(r, "id"))
	if err != nil {
		return 0, badRequest(err)
	}
	return id, nil
}

func collectionParam(r *http.Request) (interfaces.CollectionID, error) {
	id, err := interfaces.ParseCollectionID(chi.URLParam(r, "id"))
	if err != nil {
		return 0, badRequest(err)
	}
	return id, nil
}

func clusterParam(r *http.Request) (interfaces.ClusterID, error) {
	id, err := interfaces.ParseClusterID(chi.URLParam(r, "id"))
	if err != nil {
		return 0, badRequest(err)
	}
	return id, nil
}

func accountParam(r *http.Request, name string) (interfaces.AccountID, error) {
	account, err := interfaces.NewAccountIDFromHex(chi.URLParam(r, name))
	if err != nil {
		return interfaces.AccountID{}, badRequest(err)
	}
	return account, nil
}

func kindParam(r *http.Request) (interfaces.PayloadKind, error) {
	var kind interfaces.PayloadKind
	if err := kind.UnmarshalText([]byte(chi.URLParam(r, "kind"))); err != nil {
		return 0, badRequest(err)
	}
	return kind, nil
}

// Queries

func (h *Handler) getItem(r *http.Request) (any, error) {
	id, err := itemParam(r)
	if err != nil {
		return nil, err
	}
	it, ok := h.ledger.Item(id)
	if !ok {
		return nil, interfaces.ErrItemNotFound
	}
	resp := api.ItemResponse{Item: it}
	if viewer, ok := h.ledger.Delegation(id); ok {
		resp.Viewer = &viewer
	}
	if data, ok := h.ledger.Payload(id, interfaces.SecretPayload); ok {
		resp.Secret = &data
	}
	if data, ok := h.ledger.Payload(id, interfaces.CapsulePayload); ok {
		resp.Capsule = &data
	}
	for _, kind := range []interfaces.PayloadKind{interfaces.SecretPayload, interfaces.CapsulePayload} {
		if s, ok := h.ledger.SyncSession(id, kind); ok {
			resp.SyncState = &s
		}
	}
	return resp, nil
}

func (h *Handler) getSyncSession(r *http.Request) (any, error) {
	id, err := itemParam(r)
	if err != nil {
		return nil, err
	}
	kind, err := kindParam(r)
	if err != nil {
		return nil, err
	}
	s, ok := h.ledger.SyncSession(id, kind)
	if !ok {
		return nil, interfaces.ErrSyncSessionNotFound
	}
	return s, nil
}

func (h *Handler) getAccountItems(r *http.Request) (any, error) {
	account, err := accountParam(r, "account")
	if err != nil {
		return nil, err
	}
	ids := h.ledger.ItemsOf(account)
	if ids == nil {
		ids = []interfaces.ItemID{}
	}
	return ids, nil
}

func (h *Handler) getBalance(r *http.Request) (any, error) {
	account, err := accountParam(r, "account")
	if err != nil {
		return nil, err
	}
	return api.BalanceResponse{Account: account, Balance: h.ledger.Balance(account)}, nil
}

func (h *Handler) getCollection(r *http.Request) (any, error) {
	id, err := collectionParam(r)
	if err != nil {
		return nil, err
	}
	c, ok := h.ledger.Collection(id)
	if !ok {
		return nil, interfaces.ErrCollectionNotFound
	}
	return c, nil
}

func (h *Handler) getClusters(*http.Request) (any, error) {
	clusters := h.ledger.Clusters()
	if clusters == nil {
		return []any{}, nil
	}
	return clusters, nil
}

func (h *Handler) getCluster(r *http.Request) (any, error) {
	id, err := clusterParam(r)
	if err != nil {
		return nil, err
	}
	c, ok := h.ledger.Cluster(id)
	if !ok {
		return nil, interfaces.ErrClusterNotFound
	}
	return c, nil
}

func (h *Handler) getEnclave(r *http.Request) (any, error) {
	operator, err := accountParam(r, "operator")
	if err != nil {
		return nil, err
	}
	st, ok := h.ledger.EnclaveStatus(operator)
	if !ok {
		return nil, interfaces.ErrEnclaveNotFound
	}
	return st, nil
}

func (h *Handler) getUnregistrations(*http.Request) (any, error) {
	ops := h.ledger.Unregistrations()
	if ops == nil {
		ops = []interfaces.AccountID{}
	}
	return ops, nil
}

func (h *Handler) getFees(*http.Request) (any, error) {
	return h.ledger.Fees(), nil
}

func (h *Handler) getEvents(r *http.Request) (any, error) {
	var since uint64
	if s := r.URL.Query().Get("since"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, badRequest(fmt.Errorf("invalid since: %w", err))
		}
		since = v
	}
	limit := defaultEventsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			return nil, badRequest(fmt.Errorf("invalid limit %q", s))
		}
		limit = min(v, maxEventsLimit)
	}
	events := h.ledger.Events(since, limit)
	if events == nil {
		events = []ledger.Record{}
	}
	return api.EventsResponse{LastSeq: h.ledger.LastSeq(), Events: events}, nil
}

// Item operations

func (h *Handler) mint(_ *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	req, err := decode[api.MintRequest](body)
	if err != nil {
		return nil, err
	}
	var (
		id      interfaces.ItemID
		receipt ledger.Receipt
	)
	if req.Secret != nil {
		id, receipt, err = h.ledger.MintSecret(caller, req.MintParams, req.Secret)
	} else {
		id, receipt, err = h.ledger.Mint(caller, req.MintParams)
	}
	if err != nil {
		return nil, err
	}
	return api.MintResponse{ItemID: id, Receipt: receipt}, nil
}

func (h *Handler) burn(r *http.Request, caller interfaces.AccountID, _ []byte) (any, error) {
	id, err := itemParam(r)
	if err != nil {
		return nil, err
	}
	return h.ledger.Burn(caller, id)
}

func (h *Handler) transfer(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	id, err := itemParam(r)
	if err != nil {
		return nil, err
	}
	req, err := decode[api.TransferRequest](body)
	if err != nil {
		return nil, err
	}
	return h.ledger.Transfer(caller, id, req.Recipient)
}

func (h *Handler) delegate(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	id, err := itemParam(r)
	if err != nil {
		return nil, err
	}
	req, err := decode[api.DelegateRequest](body)
	if err != nil {
		return nil, err
	}
	return h.ledger.Delegate(caller, id, req.Viewer)
}

func (h *Handler) setRoyalty(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	id, err := itemParam(r)
	if err != nil {
		return nil, err
	}
	req, err := decode[api.RoyaltyRequest](body)
	if err != nil {
		return nil, err
	}
	return h.ledger.SetRoyalty(caller, id, req.Royalty)
}

func (h *Handler) addToCollection(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	id, err := itemParam(r)
	if err != nil {
		return nil, err
	}
	req, err := decode[api.AddToCollectionRequest](body)
	if err != nil {
		return nil, err
	}
	return h.ledger.AddItemToCollection(caller, id, req.CollectionID)
}

func (h *Handler) payloadOp(op func(interfaces.AccountID, interfaces.ItemID, interfaces.OffchainData) (ledger.Receipt, error)) signedFunc {
	return func(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
		id, err := itemParam(r)
		if err != nil {
			return nil, err
		}
		req, err := decode[api.OffchainDataRequest](body)
		if err != nil {
			return nil, err
		}
		return op(caller, id, req.OffchainData)
	}
}

func (h *Handler) attachSecret(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	return h.payloadOp(h.ledger.AttachSecret)(r, caller, body)
}

func (h *Handler) convertToCapsule(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	return h.payloadOp(h.ledger.ConvertToCapsule)(r, caller, body)
}

func (h *Handler) setCapsulePayload(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	return h.payloadOp(h.ledger.SetCapsulePayload)(r, caller, body)
}

func (h *Handler) notifyKeyUpdate(r *http.Request, caller interfaces.AccountID, _ []byte) (any, error) {
	id, err := itemParam(r)
	if err != nil {
		return nil, err
	}
	return h.ledger.NotifyKeyUpdate(caller, id)
}

// addShard acknowledges a shard; the caller is the enclave.
func (h *Handler) addShard(r *http.Request, enclave interfaces.AccountID, _ []byte) (any, error) {
	id, err := itemParam(r)
	if err != nil {
		return nil, err
	}
	kind, err := kindParam(r)
	if err != nil {
		return nil, err
	}
	if kind == interfaces.CapsulePayload {
		return h.ledger.AddCapsuleShard(enclave, id)
	}
	return h.ledger.AddSecretShard(enclave, id)
}

// Collection operations

func (h *Handler) createCollection(_ *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	req, err := decode[api.CreateCollectionRequest](body)
	if err != nil {
		return nil, err
	}
	id, receipt, err := h.ledger.CreateCollection(caller, req.OffchainData, req.Limit)
	if err != nil {
		return nil, err
	}
	return api.CreateCollectionResponse{CollectionID: id, Receipt: receipt}, nil
}

func (h *Handler) burnCollection(r *http.Request, caller interfaces.AccountID, _ []byte) (any, error) {
	id, err := collectionParam(r)
	if err != nil {
		return nil, err
	}
	return h.ledger.BurnCollection(caller, id)
}

func (h *Handler) closeCollection(r *http.Request, caller interfaces.AccountID, _ []byte) (any, error) {
	id, err := collectionParam(r)
	if err != nil {
		return nil, err
	}
	return h.ledger.CloseCollection(caller, id)
}

func (h *Handler) limitCollection(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	id, err := collectionParam(r)
	if err != nil {
		return nil, err
	}
	req, err := decode[api.LimitCollectionRequest](body)
	if err != nil {
		return nil, err
	}
	return h.ledger.LimitCollection(caller, id, req.Limit)
}

func (h *Handler) setCollectionMetadata(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	id, err := collectionParam(r)
	if err != nil {
		return nil, err
	}
	req, err := decode[api.OffchainDataRequest](body)
	if err != nil {
		return nil, err
	}
	return h.ledger.SetCollectionMetadata(caller, id, req.OffchainData)
}

// Enclave operations, the caller is the operator.

func (h *Handler) registerEnclave(_ *http.Request, operator interfaces.AccountID, body []byte) (any, error) {
	req, err := decode[api.EnclaveRequest](body)
	if err != nil {
		return nil, err
	}
	return h.ledger.RegisterEnclave(operator, req.Enclave, req.APIURI)
}

func (h *Handler) unregisterEnclave(_ *http.Request, operator interfaces.AccountID, _ []byte) (any, error) {
	return h.ledger.UnregisterEnclave(operator)
}

func (h *Handler) updateEnclave(_ *http.Request, operator interfaces.AccountID, body []byte) (any, error) {
	req, err := decode[api.EnclaveRequest](body)
	if err != nil {
		return nil, err
	}
	return h.ledger.UpdateEnclave(operator, req.Enclave, req.APIURI)
}

func (h *Handler) cancelUpdate(_ *http.Request, operator interfaces.AccountID, _ []byte) (any, error) {
	return h.ledger.CancelUpdate(operator)
}

// Admin operations

func (h *Handler) createCluster(_ *http.Request, caller interfaces.AccountID, _ []byte) (any, error) {
	id, receipt, err := h.ledger.CreateCluster(caller)
	if err != nil {
		return nil, err
	}
	return api.CreateClusterResponse{ClusterID: id, Receipt: receipt}, nil
}

func (h *Handler) removeCluster(r *http.Request, caller interfaces.AccountID, _ []byte) (any, error) {
	id, err := clusterParam(r)
	if err != nil {
		return nil, err
	}
	return h.ledger.RemoveCluster(caller, id)
}

func (h *Handler) assignEnclave(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	operator, err := accountParam(r, "operator")
	if err != nil {
		return nil, err
	}
	req, err := decode[api.AssignEnclaveRequest](body)
	if err != nil {
		return nil, err
	}
	return h.ledger.AssignEnclave(caller, operator, req.ClusterID)
}

func (h *Handler) operatorOp(op func(caller, operator interfaces.AccountID) (ledger.Receipt, error)) signedFunc {
	return func(r *http.Request, caller interfaces.AccountID, _ []byte) (any, error) {
		operator, err := accountParam(r, "operator")
		if err != nil {
			return nil, err
		}
		return op(caller, operator)
	}
}

func (h *Handler) removeRegistration(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	return h.operatorOp(h.ledger.RemoveRegistration)(r, caller, body)
}

func (h *Handler) removeUpdate(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	return h.operatorOp(h.ledger.RemoveUpdate)(r, caller, body)
}

func (h *Handler) removeEnclave(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	return h.operatorOp(h.ledger.RemoveEnclave)(r, caller, body)
}

func (h *Handler) forceUpdateEnclave(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	operator, err := accountParam(r, "operator")
	if err != nil {
		return nil, err
	}
	req, err := decode[api.EnclaveRequest](body)
	if err != nil {
		return nil, err
	}
	return h.ledger.ForceUpdateEnclave(caller, operator, req.Enclave, req.APIURI)
}

func (h *Handler) setFee(_ *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	req, err := decode[api.SetFeeRequest](body)
	if err != nil {
		return nil, err
	}
	return h.ledger.SetFee(caller, req.Kind, req.Fee)
}

func (h *Handler) setMarker(r *http.Request, caller interfaces.AccountID, body []byte) (any, error) {
	id, err := itemParam(r)
	if err != nil {
		return nil, err
	}
	req, err := decode[api.MarkerRequest](body)
	if err != nil {
		return nil, err
	}
	marker, err := items.ParseMarker(req.Marker)
	if err != nil {
		return nil, badRequest(err)
	}
	return h.ledger.SetItemMarker(caller, id, marker, req.Value)
}
