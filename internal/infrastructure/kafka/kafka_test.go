package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/order"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	msgs []kafka.Message
	errs []error
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return kafka.Message{}, err
	}
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) Close() error { return nil }

func envelope(t *testing.T, typ, orderID string) order.Envelope {
	t.Helper()
	e, err := order.NewEnvelope(typ, orderID, map[string]string{"order_id": orderID})
	require.NoError(t, err)
	return e
}

// ============================================
// Producer Tests
// ============================================

func TestProducer_PublishKeysByOrder(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil)

	paid := envelope(t, order.EventOrderPaid, "ord-1")
	granted := envelope(t, order.EventPurchaseGranted, "ord-1")

	require.NoError(t, p.Publish(context.Background(), paid, granted))
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "ord-1", string(w.msgs[0].Key))
	assert.Equal(t, "ord-1", string(w.msgs[1].Key))
	assert.Equal(t, "event-type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, order.EventOrderPaid, string(w.msgs[0].Headers[0].Value))

	var decoded order.Envelope
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &decoded))
	assert.Equal(t, granted.ID, decoded.ID)
	assert.Equal(t, order.EventPurchaseGranted, decoded.Type)
}

func TestProducer_PublishNothing(t *testing.T) {
	w := &fakeWriter{err: errors.New("must not be called")}
	p := newProducer(w, nil)

	assert.NoError(t, p.Publish(context.Background()))
}

func TestProducer_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unreachable")}
	p := newProducer(w, nil)

	err := p.Publish(context.Background(), envelope(t, order.EventOrderFailed, "ord-2"))
	assert.ErrorContains(t, err, "broker unreachable")
}

// ============================================
// Consumer Tests
// ============================================

func TestConsumer_DeliversDecodedEnvelopes(t *testing.T) {
	paid := envelope(t, order.EventOrderPaid, "ord-1")
	raw, err := json.Marshal(paid)
	require.NoError(t, err)

	r := &fakeReader{
		errs: []error{errors.New("transient")},
		msgs: []kafka.Message{
			{Value: []byte("not json"), Offset: 1},
			{Value: raw, Offset: 2},
		},
	}
	c := newConsumer(r, nil)

	var got []order.Envelope
	err = c.Consume(context.Background(), func(ctx context.Context, e order.Envelope) error {
		got = append(got, e)
		return errors.New("handler errors are logged")
	})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, paid.ID, got[0].ID)
	assert.Equal(t, "ord-1", got[0].OrderID)
}

func TestConsumer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	<-ctx.Done()

	r := &fakeReader{errs: []error{context.DeadlineExceeded}}
	c := newConsumer(r, nil)

	err := c.Consume(ctx, func(ctx context.Context, e order.Envelope) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
