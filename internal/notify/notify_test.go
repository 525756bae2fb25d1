package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ariefcatur/go-pharma-stock/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sink struct {
	mu   sync.Mutex
	msgs []kafkago.Message
	err  error
}

func (s *sink) Publish(key, value []byte, headers ...kafkago.Header) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
	return nil
}

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDedup) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDedup) Release(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}

type recordingMailer struct {
	sent []Notification
	err  error
}

func (m *recordingMailer) Send(_ context.Context, n Notification) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

func TestPublisherEnvelope(t *testing.T) {
	s := &sink{}
	p := &Publisher{Orders: s, PurchaseOrders: &sink{}, Service: "stock-api"}

	err := p.OrderChanged(context.Background(), orders.EventOrderCancelled, orders.OrderEventPayload{
		OrderID: "o1", CustomerID: "c1", Status: orders.StatusCancelled, TotalAmount: decimal.NewFromInt(12),
	})
	require.NoError(t, err)
	require.Len(t, s.msgs, 1)
	assert.Equal(t, []byte("o1"), s.msgs[0].Key)

	var env orders.Envelope
	require.NoError(t, json.Unmarshal(s.msgs[0].Value, &env))
	assert.Equal(t, orders.EventOrderCancelled, env.EventType)
	assert.Equal(t, "stock-api", env.Producer)
	assert.Equal(t, "o1", env.CorrelationID)
	assert.NotEmpty(t, env.EventID)
}

func TestPublisherReportsSinkError(t *testing.T) {
	p := &Publisher{Orders: &sink{err: errors.New("full")}, Service: "x"}
	assert.Error(t, p.OrderChanged(context.Background(), orders.EventOrderCreated, orders.OrderEventPayload{OrderID: "o1"}))
}

func TestDispatcherDeliversOnce(t *testing.T) {
	s := &sink{}
	p := &Publisher{Orders: s, PurchaseOrders: s, Service: "stock-api"}
	require.NoError(t, p.OrderChanged(context.Background(), orders.EventOrderCreated,
		orders.OrderEventPayload{OrderID: "o1", CustomerID: "c1", Status: orders.StatusNew}))

	mailer := &recordingMailer{}
	d := &Dispatcher{Dedup: &memDedup{seen: map[string]bool{}}, Mailer: mailer, Log: zap.NewNop()}

	require.NoError(t, d.Handle(context.Background(), s.msgs[0]))
	require.NoError(t, d.Handle(context.Background(), s.msgs[0]))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "c1", mailer.sent[0].Recipient)
	assert.Equal(t, "Order placed: o1", mailer.sent[0].Subject)
}

func TestDispatcherReleasesOnMailerError(t *testing.T) {
	s := &sink{}
	p := &Publisher{Orders: s, PurchaseOrders: s, Service: "stock-api"}
	require.NoError(t, p.PurchaseOrderChanged(context.Background(), orders.EventPOApproved,
		orders.PurchaseOrderEventPayload{PurchaseOrderID: "po1", VendorID: "v1", Status: "approved"}))

	dedup := &memDedup{seen: map[string]bool{}}
	mailer := &recordingMailer{err: errors.New("smtp down")}
	d := &Dispatcher{Dedup: dedup, Mailer: mailer, Log: zap.NewNop()}

	require.Error(t, d.Handle(context.Background(), s.msgs[0]))
	mailer.err = nil
	require.NoError(t, d.Handle(context.Background(), s.msgs[0]))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "v1", mailer.sent[0].Recipient)
}

func TestDispatcherSkipsGarbage(t *testing.T) {
	mailer := &recordingMailer{}
	d := &Dispatcher{Dedup: &memDedup{seen: map[string]bool{}}, Mailer: mailer, Log: zap.NewNop()}
	assert.NoError(t, d.Handle(context.Background(), kafkago.Message{Value: []byte("{")}))
	assert.NoError(t, d.Handle(context.Background(), kafkago.Message{Value: []byte(`{"event_type":"Unknown","payload":{}}`)}))
	assert.Empty(t, mailer.sent)
}
