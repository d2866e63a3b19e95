package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/cart"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/order"
)

// MemoryStore is an in-memory implementation of order.Repository, order.GrantRepository
// and cart.Repository for testing. Conditional updates and insert-or-ignore behave like
// the Postgres store.
type MemoryStore struct {
	mu      sync.RWMutex
	orders  map[string]order.Order
	lines   map[string][]order.Line
	grants  map[grantKey]order.Grant
	carts   map[string][]cart.Line
	catalog map[string]cart.CatalogItem

	// Error injection
	InsertOrderErr      error
	InsertOrderLinesErr error
	DeleteOrderErr      error
	GetOrderErr         error
	UpdateStatusErr     error
	SetGatewayIDErr     error
	InsertGrantErr      error
	GetCartErr          error
	GetCatalogErr       error
	ClearCartErr        error

	// For tracking calls in tests
	DeleteOrderCalls  []string
	UpdateStatusCalls []UpdateStatusCall
	ClearCartCalls    []string
	GrantCalls        []order.Grant
}

type grantKey struct {
	userID string
	itemID string
}

// UpdateStatusCall records parameters passed to UpdateStatusIfPending
type UpdateStatusCall struct {
	OrderID string
	Status  order.Status
	At      time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[string]order.Order),
		lines:   make(map[string][]order.Line),
		grants:  make(map[grantKey]order.Grant),
		carts:   make(map[string][]cart.Line),
		catalog: make(map[string]cart.CatalogItem),
	}
}

// ============================================
// Seeding helpers
// ============================================

// AddCatalogItem sets the authoritative price of an item
func (m *MemoryStore) AddCatalogItem(id, title string, priceCents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog[id] = cart.CatalogItem{ID: id, Title: title, PriceCents: priceCents}
}

// AddCartLine appends a line to a user's cart
func (m *MemoryStore) AddCartLine(userID, itemID string, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[userID] = append(m.carts[userID], cart.Line{ItemID: itemID, Quantity: quantity})
}

// PutOrder stores an order and its lines directly
func (m *MemoryStore) PutOrder(o order.Order, lines []order.Line) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.Lines = nil
	m.orders[o.ID] = o
	m.lines[o.ID] = append([]order.Line(nil), lines...)
}

// ============================================
// Inspection helpers
// ============================================

// Order returns a copy of the stored order
func (m *MemoryStore) Order(id string) (order.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	return o, ok
}

// Orders returns all stored orders ordered by creation time
func (m *MemoryStore) Orders() []order.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return all
}

// Grants returns all stored grants for a user
func (m *MemoryStore) Grants(userID string) []order.Grant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []order.Grant
	for k, g := range m.grants {
		if k.userID == userID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// CartLines returns the stored cart for a user
func (m *MemoryStore) CartLines(userID string) []cart.Line {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]cart.Line(nil), m.carts[userID]...)
}

// ============================================
// order.Repository
// ============================================

func (m *MemoryStore) InsertOrder(ctx context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertOrderErr != nil {
		return m.InsertOrderErr
	}
	stored := *o
	stored.Lines = nil
	m.orders[o.ID] = stored
	return nil
}

func (m *MemoryStore) InsertOrderLines(ctx context.Context, orderID string, lines []order.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertOrderLinesErr != nil {
		return m.InsertOrderLinesErr
	}
	m.lines[orderID] = append([]order.Line(nil), lines...)
	return nil
}

func (m *MemoryStore) DeleteOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteOrderCalls = append(m.DeleteOrderCalls, orderID)
	if m.DeleteOrderErr != nil {
		return m.DeleteOrderErr
	}
	delete(m.orders, orderID)
	delete(m.lines, orderID)
	return nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetOrderErr != nil {
		return nil, m.GetOrderErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return &o, nil
}

func (m *MemoryStore) GetOrderLines(ctx context.Context, orderID string) ([]order.Line, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]order.Line(nil), m.lines[orderID]...), nil
}

func (m *MemoryStore) UpdateStatusIfPending(ctx context.Context, orderID string, status order.Status, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateStatusCalls = append(m.UpdateStatusCalls, UpdateStatusCall{OrderID: orderID, Status: status, At: at})
	if m.UpdateStatusErr != nil {
		return false, m.UpdateStatusErr
	}
	o, ok := m.orders[orderID]
	if !ok || o.Status != order.StatusPending {
		return false, nil
	}
	o.Status = status
	if status == order.StatusPaid {
		paidAt := at
		o.PaidAt = &paidAt
	}
	m.orders[orderID] = o
	return true, nil
}

func (m *MemoryStore) SetGatewayCheckoutID(ctx context.Context, orderID, checkoutID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetGatewayIDErr != nil {
		return m.SetGatewayIDErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.GatewayCheckoutID = checkoutID
	m.orders[orderID] = o
	return nil
}

func (m *MemoryStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, o := range m.orders {
		if o.Status == order.StatusPending && o.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ============================================
// order.GrantRepository
// ============================================

func (m *MemoryStore) InsertGrantIfAbsent(ctx context.Context, g order.Grant) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GrantCalls = append(m.GrantCalls, g)
	if m.InsertGrantErr != nil {
		return false, m.InsertGrantErr
	}
	key := grantKey{userID: g.UserID, itemID: g.ItemID}
	if _, exists := m.grants[key]; exists {
		return false, nil
	}
	m.grants[key] = g
	return true, nil
}

// ============================================
// cart.Repository
// ============================================

func (m *MemoryStore) GetCartLines(ctx context.Context, userID string) ([]cart.Line, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetCartErr != nil {
		return nil, m.GetCartErr
	}
	return append([]cart.Line(nil), m.carts[userID]...), nil
}

func (m *MemoryStore) GetCatalogItems(ctx context.Context, ids []string) (map[string]cart.CatalogItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetCatalogErr != nil {
		return nil, m.GetCatalogErr
	}
	out := make(map[string]cart.CatalogItem, len(ids))
	for _, id := range ids {
		if item, ok := m.catalog[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

func (m *MemoryStore) ClearCart(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearCartCalls = append(m.ClearCartCalls, userID)
	if m.ClearCartErr != nil {
		return m.ClearCartErr
	}
	delete(m.carts, userID)
	return nil
}
