package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/order"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	to       []string
	receipts []email.Receipt
	err      error
}

func (s *recordingSender) SendPurchaseReceipt(to string, r email.Receipt) error {
	if s.err != nil {
		return s.err
	}
	s.to = append(s.to, to)
	s.receipts = append(s.receipts, r)
	return nil
}

func paidEnvelope(t *testing.T, customerEmail string) order.Envelope {
	t.Helper()
	e, err := order.NewEnvelope(order.EventOrderPaid, "ord-1", order.OrderPaid{
		OrderID:       "ord-1",
		UserID:        "user-1",
		CustomerEmail: customerEmail,
		Currency:      "ZAR",
		AmountCents:   2000,
		Lines: []order.Line{
			{ItemID: "item-X", Title: "Night Drive", UnitPriceCents: 1000, Quantity: 2},
		},
	})
	require.NoError(t, err)
	return e
}

func TestHandleEvent_OrderPaidSendsReceipt(t *testing.T) {
	sender := &recordingSender{}
	h := NewHandler(sender, nil)

	require.NoError(t, h.HandleEvent(context.Background(), paidEnvelope(t, "fan@example.com")))

	require.Len(t, sender.receipts, 1)
	assert.Equal(t, "fan@example.com", sender.to[0])
	r := sender.receipts[0]
	assert.Equal(t, "ord-1", r.OrderID)
	assert.Equal(t, "ZAR", r.Currency)
	assert.EqualValues(t, 2000, r.TotalCents)
	require.Len(t, r.Items, 1)
	assert.Equal(t, "Night Drive", r.Items[0].Title)
	assert.Equal(t, 2, r.Items[0].Quantity)
}

func TestHandleEvent_SkipsWithoutEmail(t *testing.T) {
	sender := &recordingSender{}
	h := NewHandler(sender, nil)

	require.NoError(t, h.HandleEvent(context.Background(), paidEnvelope(t, "")))
	assert.Empty(t, sender.receipts)
}

func TestHandleEvent_IgnoresOtherEvents(t *testing.T) {
	sender := &recordingSender{}
	h := NewHandler(sender, nil)

	for _, typ := range []string{order.EventOrderFailed, order.EventPurchaseGranted} {
		e, err := order.NewEnvelope(typ, "ord-1", map[string]string{})
		require.NoError(t, err)
		assert.NoError(t, h.HandleEvent(context.Background(), e))
	}
	assert.Empty(t, sender.receipts)
}

func TestHandleEvent_Errors(t *testing.T) {
	t.Run("bad payload", func(t *testing.T) {
		h := NewHandler(&recordingSender{}, nil)
		e := order.Envelope{ID: "evt-1", Type: order.EventOrderPaid, Data: []byte(`[]`)}
		assert.Error(t, h.HandleEvent(context.Background(), e))
	})

	t.Run("smtp failure", func(t *testing.T) {
		h := NewHandler(&recordingSender{err: errors.New("smtp down")}, nil)
		err := h.HandleEvent(context.Background(), paidEnvelope(t, "fan@example.com"))
		assert.ErrorContains(t, err, "smtp down")
	})
}
