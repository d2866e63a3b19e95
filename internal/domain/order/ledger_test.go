package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/order"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger() (*order.Ledger, *mocks.MemoryStore) {
	repo := mocks.NewMemoryStore()
	return order.NewLedger(repo, nil), repo
}

func sampleOrder(repo *mocks.MemoryStore, status order.Status) order.Order {
	o := order.Order{
		ID:          "ord-1",
		UserID:      "user-1",
		Currency:    "ZAR",
		AmountCents: 500,
		Status:      status,
		CreatedAt:   time.Now().Add(-time.Hour),
	}
	repo.PutOrder(o, []order.Line{{ItemID: "song-x", Title: "Song X", UnitPriceCents: 500, Quantity: 1}})
	return o
}

// ============================================
// CreatePending Tests
// ============================================

func TestLedger_CreatePending_Success(t *testing.T) {
	ledger, repo := newTestLedger()
	ctx := context.Background()

	lines := []order.Line{
		{ItemID: "song-x", Title: "Song X", UnitPriceCents: 500, Quantity: 2},
		{ItemID: "album-y", Title: "Album Y", UnitPriceCents: 9900, Quantity: 1},
	}

	o, err := ledger.CreatePending(ctx, order.NewOrder{
		UserID:        "user-1",
		CustomerEmail: "fan@example.com",
		Currency:      "zar",
		Lines:         lines,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, int64(10900), o.AmountCents)
	assert.Equal(t, "ZAR", o.Currency)
	assert.Equal(t, lines, o.Lines)

	stored, ok := repo.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, order.StatusPending, stored.Status)

	loaded, err := ledger.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, lines, loaded.Lines)
}

func TestLedger_CreatePending_Validation(t *testing.T) {
	ledger, repo := newTestLedger()
	ctx := context.Background()

	_, err := ledger.CreatePending(ctx, order.NewOrder{UserID: "user-1"})
	assert.ErrorIs(t, err, order.ErrEmptyOrder)

	_, err = ledger.CreatePending(ctx, order.NewOrder{
		UserID: "user-1",
		Lines:  []order.Line{{ItemID: "a", UnitPriceCents: 100, Quantity: 0}},
	})
	assert.ErrorIs(t, err, order.ErrInvalidLine)

	_, err = ledger.CreatePending(ctx, order.NewOrder{
		Lines: []order.Line{{ItemID: "a", UnitPriceCents: 100, Quantity: 1}},
	})
	assert.Error(t, err)

	assert.Empty(t, repo.Orders())
}

func TestLedger_CreatePending_InsertOrderFails(t *testing.T) {
	ledger, repo := newTestLedger()
	repo.InsertOrderErr = errors.New("connection refused")

	_, err := ledger.CreatePending(context.Background(), order.NewOrder{
		UserID: "user-1",
		Lines:  []order.Line{{ItemID: "a", UnitPriceCents: 100, Quantity: 1}},
	})

	require.Error(t, err)
	assert.Empty(t, repo.DeleteOrderCalls)
}

func TestLedger_CreatePending_LineInsertFailureRollsBack(t *testing.T) {
	ledger, repo := newTestLedger()
	repo.InsertOrderLinesErr = errors.New("disk full")

	_, err := ledger.CreatePending(context.Background(), order.NewOrder{
		UserID: "user-1",
		Lines:  []order.Line{{ItemID: "a", UnitPriceCents: 100, Quantity: 1}},
	})

	require.Error(t, err)
	assert.Len(t, repo.DeleteOrderCalls, 1)
	assert.Empty(t, repo.Orders(), "no order may survive without its lines")
}

func TestLedger_CreatePending_RollbackSurvivesCancelledContext(t *testing.T) {
	ledger, repo := newTestLedger()
	repo.InsertOrderLinesErr = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ledger.CreatePending(ctx, order.NewOrder{
		UserID: "user-1",
		Lines:  []order.Line{{ItemID: "a", UnitPriceCents: 100, Quantity: 1}},
	})

	require.Error(t, err)
	assert.Empty(t, repo.Orders())
}

// ============================================
// Transition Tests
// ============================================

func TestLedger_MarkPaid_FromPending(t *testing.T) {
	ledger, repo := newTestLedger()
	sampleOrder(repo, order.StatusPending)
	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	changed, err := ledger.MarkPaid(context.Background(), "ord-1", paidAt)

	require.NoError(t, err)
	assert.True(t, changed)
	stored, _ := repo.Order("ord-1")
	assert.Equal(t, order.StatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	assert.True(t, paidAt.Equal(*stored.PaidAt))
}

func TestLedger_MarkPaid_Idempotent(t *testing.T) {
	ledger, repo := newTestLedger()
	sampleOrder(repo, order.StatusPaid)

	changed, err := ledger.MarkPaid(context.Background(), "ord-1", time.Now())

	require.NoError(t, err)
	assert.False(t, changed)
}

func TestLedger_TerminalStatesAreFinal(t *testing.T) {
	tests := []struct {
		name    string
		initial order.Status
		apply   func(*order.Ledger) (bool, error)
	}{
		{
			name:    "paid cannot become failed",
			initial: order.StatusPaid,
			apply: func(l *order.Ledger) (bool, error) {
				return l.MarkFailed(context.Background(), "ord-1")
			},
		},
		{
			name:    "failed cannot become paid",
			initial: order.StatusFailed,
			apply: func(l *order.Ledger) (bool, error) {
				return l.MarkPaid(context.Background(), "ord-1", time.Now())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, repo := newTestLedger()
			sampleOrder(repo, tt.initial)

			changed, err := tt.apply(ledger)

			assert.ErrorIs(t, err, order.ErrInvalidTransition)
			assert.False(t, changed)
			stored, _ := repo.Order("ord-1")
			assert.Equal(t, tt.initial, stored.Status)
		})
	}
}

func TestLedger_MarkFailed_Idempotent(t *testing.T) {
	ledger, repo := newTestLedger()
	sampleOrder(repo, order.StatusPending)

	changed, err := ledger.MarkFailed(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = ledger.MarkFailed(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestLedger_Transition_UnknownOrder(t *testing.T) {
	ledger, _ := newTestLedger()

	_, err := ledger.MarkPaid(context.Background(), "missing", time.Now())

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestLedger_Transition_StoreError(t *testing.T) {
	ledger, repo := newTestLedger()
	sampleOrder(repo, order.StatusPending)
	repo.UpdateStatusErr = errors.New("timeout")

	_, err := ledger.MarkPaid(context.Background(), "ord-1", time.Now())

	require.Error(t, err)
	assert.NotErrorIs(t, err, order.ErrInvalidTransition)
}

// ============================================
// Gateway Reference / Expiry Tests
// ============================================

func TestLedger_AttachGatewayReference(t *testing.T) {
	ledger, repo := newTestLedger()
	sampleOrder(repo, order.StatusPending)

	ledger.AttachGatewayReference(context.Background(), "ord-1", "ch_abc")

	stored, _ := repo.Order("ord-1")
	assert.Equal(t, "ch_abc", stored.GatewayCheckoutID)
}

func TestLedger_AttachGatewayReference_FailureIsSwallowed(t *testing.T) {
	ledger, repo := newTestLedger()
	sampleOrder(repo, order.StatusPending)
	repo.SetGatewayIDErr = errors.New("write failed")

	assert.NotPanics(t, func() {
		ledger.AttachGatewayReference(context.Background(), "ord-1", "ch_abc")
	})
	stored, _ := repo.Order("ord-1")
	assert.Equal(t, order.StatusPending, stored.Status)
}

func TestLedger_ExpireStale(t *testing.T) {
	ledger, repo := newTestLedger()
	now := time.Now()

	repo.PutOrder(order.Order{ID: "old", UserID: "u", Status: order.StatusPending, CreatedAt: now.Add(-48 * time.Hour)}, nil)
	repo.PutOrder(order.Order{ID: "fresh", UserID: "u", Status: order.StatusPending, CreatedAt: now}, nil)
	repo.PutOrder(order.Order{ID: "paid", UserID: "u", Status: order.StatusPaid, CreatedAt: now.Add(-48 * time.Hour)}, nil)

	expired, err := ledger.ExpireStale(context.Background(), now.Add(-24*time.Hour))

	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	old, _ := repo.Order("old")
	assert.Equal(t, order.StatusFailed, old.Status)
	fresh, _ := repo.Order("fresh")
	assert.Equal(t, order.StatusPending, fresh.Status)
	paid, _ := repo.Order("paid")
	assert.Equal(t, order.StatusPaid, paid.Status)
}
