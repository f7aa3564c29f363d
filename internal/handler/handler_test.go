package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/easyeat/internal/domain/auth"
	"github.com/xenking/easyeat/internal/domain/order"
	"github.com/xenking/easyeat/internal/session"
	"github.com/xenking/easyeat/internal/storage/localstore"
)

// --- Mock implementations ---

type mockAPIKeys struct {
	byHash map[string]*auth.APIKeyInfo
	err    error
}

func (m *mockAPIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.byHash[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

type mockOrders struct {
	mu     sync.Mutex
	orders map[string]order.Order
	onList func()
}

func (m *mockOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.UpdatedAt = o.CreatedAt
	m.orders[o.ID] = *o
	return nil
}

func (m *mockOrders) Get(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return &o, nil
}

func (m *mockOrders) UpdateStatus(_ context.Context, id string, from, to order.Status) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return time.Time{}, order.ErrOrderNotFound
	}
	if o.Status != from {
		return time.Time{}, order.ErrStatusChanged
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	m.orders[id] = o
	return o.UpdatedAt, nil
}

func (m *mockOrders) ListByCustomer(_ context.Context, customerID string) ([]order.Order, error) {
	m.mu.Lock()
	hook := m.onList
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return m.filter(func(o order.Order) bool { return o.CustomerID == customerID }), nil
}

func (m *mockOrders) ListBySeller(_ context.Context, sellerID string, _ order.ListOptions) ([]order.Order, error) {
	return m.filter(func(o order.Order) bool { return o.SellerID == sellerID }), nil
}

func (m *mockOrders) filter(keep func(order.Order) bool) []order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

// --- Helpers ---

var pepper = []byte("test-pepper")

type testServer struct {
	srv    *httptest.Server
	routes http.Handler
	orders *mockOrders
	keys   *mockAPIKeys
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	keys := &mockAPIKeys{byHash: make(map[string]*auth.APIKeyInfo)}
	for key, info := range map[string]auth.APIKeyInfo{
		"alice-key": {ID: "k1", SubjectID: "c1", Name: "Alice", Role: auth.RoleCustomer},
		"chef-key":  {ID: "k2", SubjectID: "chef-1", Name: "Chef One", Role: auth.RoleChef},
		"chef2-key": {ID: "k3", SubjectID: "chef-2", Name: "Chef Two", Role: auth.RoleChef},
	} {
		info.KeyHash = auth.HashKey(pepper, key)
		keys.byHash[info.KeyHash] = &info
	}

	orders := &mockOrders{orders: make(map[string]order.Order)}
	sessions := session.NewManager(session.Config{
		History: order.Config{DeliveryFee: decimal.RequireFromString("2.00")},
	}, orders, localstore.NewMemory(), order.Options{})
	t.Cleanup(sessions.Close)

	h := NewHandler(sessions, order.NewQueue(orders, order.Options{}), NewSecurityHandler(keys, pepper))
	routes := h.Routes()
	srv := httptest.NewServer(routes)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, routes: routes, orders: orders, keys: keys}
}

func (s *testServer) do(t *testing.T, method, path, key string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.srv.URL+path, reader)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		var raw any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		switch v := raw.(type) {
		case map[string]any:
			out = v
		case []any:
			out = map[string]any{"items": v}
		}
	}
	return resp.StatusCode, out
}

func pho() map[string]any {
	return map[string]any{
		"itemId":     "m1",
		"name":       "Pho",
		"price":      10.99,
		"quantity":   3,
		"sellerId":   "chef-1",
		"sellerName": "Chef One",
	}
}

// --- Tests ---

func TestAuth(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.EqualValues(t, 401, body["code"])

	code, _ = s.do(t, http.MethodGet, "/api/cart", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodGet, "/api/chef/orders", "alice-key", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodGet, "/api/cart", "chef-key", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAuth_StoreUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.keys.err = errors.New("connection refused")

	code, body := s.do(t, http.MethodGet, "/api/cart", "alice-key", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.EqualValues(t, 503, body["code"])
}

func TestCart(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/api/cart", "alice-key", pho())
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "32.97", body["total"])
	assert.EqualValues(t, 3, body["itemCount"])

	code, body = s.do(t, http.MethodPut, "/api/cart/m1", "alice-key", map[string]any{"quantity": 1})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "10.99", body["total"])

	code, body = s.do(t, http.MethodDelete, "/api/cart/m1", "alice-key", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0", body["total"])

	code, _ = s.do(t, http.MethodPost, "/api/cart", "alice-key", map[string]any{"itemId": "m1", "price": 0})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/api/cart", "alice-key", map[string]any{"bogus": true})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCheckoutAndChefFlow(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPost, "/api/cart", "alice-key", pho())
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodPost, "/api/checkout", "alice-key", map[string]any{"address": ""})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["message"], "address")

	code, body = s.do(t, http.MethodGet, "/api/cart", "alice-key", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, body["itemCount"], "failed checkout keeps the cart")

	code, body = s.do(t, http.MethodPost, "/api/checkout", "alice-key", map[string]any{"address": "1 Main St"})
	require.Equal(t, http.StatusCreated, code)
	orderID := body["id"].(string)
	assert.Equal(t, "in-progress", body["status"])
	assert.Equal(t, "34.97", body["totalAmount"])

	code, body = s.do(t, http.MethodGet, "/api/cart", "alice-key", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["itemCount"])

	// The remote write happens in the background.
	require.Eventually(t, func() bool {
		_, body := s.do(t, http.MethodGet, "/api/chef/orders", "chef-key", nil)
		return len(body["items"].([]any)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	code, _ = s.do(t, http.MethodGet, "/api/chef/orders/"+orderID, "chef2-key", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(t, http.MethodPost, "/api/chef/orders/"+orderID+"/status", "chef-key", map[string]any{"status": "preparing"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "preparing", body["status"])
	assert.Equal(t, []any{"ready", "cancelled"}, body["next"])

	code, _ = s.do(t, http.MethodPost, "/api/chef/orders/"+orderID+"/status", "chef-key", map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(t, http.MethodPost, "/api/chef/orders/"+orderID+"/status", "chef-key", map[string]any{"status": "eaten"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodPost, "/api/orders/refresh", "alice-key", nil)
	require.Equal(t, http.StatusOK, code)
	orders := body["orders"].([]any)
	require.Len(t, orders, 1)
	entry := orders[0].(map[string]any)
	assert.Equal(t, orderID, entry["id"])
	assert.Equal(t, "in-progress", entry["status"])
	assert.Equal(t, "remote", entry["source"])
}

func TestOrders(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodGet, "/api/orders", "alice-key", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["orders"])

	code, _ = s.do(t, http.MethodPost, "/api/orders/missing/cancel", "alice-key", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/api/cart", "alice-key", pho())
	require.Equal(t, http.StatusOK, code)
	code, body = s.do(t, http.MethodPost, "/api/checkout", "alice-key", map[string]any{"address": "1 Main St"})
	require.Equal(t, http.StatusCreated, code)
	orderID := body["id"].(string)

	require.Eventually(t, func() bool {
		_, body := s.do(t, http.MethodGet, "/api/orders", "alice-key", nil)
		orders := body["orders"].([]any)
		return len(orders) == 1 && orders[0].(map[string]any)["source"] == "remote"
	}, 2*time.Second, 10*time.Millisecond)

	code, body = s.do(t, http.MethodPost, "/api/orders/"+orderID+"/cancel", "alice-key", nil)
	require.Equal(t, http.StatusOK, code)
	entry := body["orders"].([]any)[0].(map[string]any)
	assert.Equal(t, "cancelled", entry["status"])
	require.Eventually(t, func() bool {
		o, err := s.orders.Get(context.Background(), orderID)
		return err == nil && o.Status == order.StatusCancelled
	}, 2*time.Second, 10*time.Millisecond)

	code, _ = s.do(t, http.MethodDelete, "/api/orders", "alice-key", nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = s.do(t, http.MethodPost, "/api/logout", "alice-key", nil)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestCheckout_ContactDetails(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPost, "/api/cart", "alice-key", pho())
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodPost, "/api/checkout", "alice-key", map[string]any{
		"address": "1 Main St",
		"phone":   "+1 555 0100",
		"notes":   "Ring twice",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "+1 555 0100", body["phone"])
	orderID := body["id"].(string)

	require.Eventually(t, func() bool {
		_, err := s.orders.Get(context.Background(), orderID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	code, body = s.do(t, http.MethodGet, "/api/chef/orders/"+orderID, "chef-key", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "+1 555 0100", body["phone"])
	assert.Equal(t, "Ring twice", body["notes"])
}

func TestRefreshOrders_ClientGone(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodGet, "/api/orders", "alice-key", nil)
	require.Equal(t, http.StatusOK, code)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	release := make(chan struct{})
	defer close(release)
	s.orders.mu.Lock()
	s.orders.onList = func() {
		cancel()
		<-release
	}
	s.orders.mu.Unlock()

	req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/api/orders/refresh", nil)
	req.Header.Set(APIKeyHeader, "alice-key")
	rec := httptest.NewRecorder()
	s.routes.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, true, body["stale"])
}
