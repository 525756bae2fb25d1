// Package audit ships audit entries to the external log service. Delivery is
// best-effort: entries are queued and sent from a background goroutine, and
// a full queue or a failed POST drops the entry.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

type Entry struct {
	UserID  string `json:"user_id"`
	OrderID string `json:"order_id"`
	Action  string `json:"action"`
	Details string `json:"details"`
}

// Recorder never blocks and never reports failure to the caller.
type Recorder interface {
	Record(e Entry)
}

type Nop struct{}

func (Nop) Record(Entry) {}

var entriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pharma",
	Subsystem: "audit",
	Name:      "entries_total",
	Help:      "Audit entries by delivery result",
}, []string{"result"})

type Client struct {
	endpoint string
	http     *http.Client
	inbox    chan Entry
	done     chan struct{}
	once     sync.Once
	closeCh  chan struct{}
	log      *zap.Logger
}

var _ Recorder = (*Client)(nil)

func New(baseURL string, queue int, log *zap.Logger) *Client {
	if queue <= 0 {
		queue = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/logs/create",
		http:     &http.Client{Timeout: 3 * time.Second},
		inbox:    make(chan Entry, queue),
		done:     make(chan struct{}),
		closeCh:  make(chan struct{}),
		log:      log,
	}
}

func (c *Client) Start(ctx context.Context) {
	go func() {
		defer close(c.closeCh)
		for {
			select {
			case <-ctx.Done():
				c.drain()
				return
			case <-c.done:
				c.drain()
				return
			case e := <-c.inbox:
				c.send(e)
			}
		}
	}()
}

// drain flushes what is already queued without waiting for more.
func (c *Client) drain() {
	for {
		select {
		case e := <-c.inbox:
			c.send(e)
		default:
			return
		}
	}
}

// Record after Close drops the entry. The inbox is never closed, so a
// late handler cannot panic on send.
func (c *Client) Record(e Entry) {
	select {
	case <-c.done:
		entriesTotal.WithLabelValues("dropped").Inc()
		c.log.Warn("audit client closed, entry dropped",
			zap.String("order_id", e.OrderID), zap.String("action", e.Action))
		return
	default:
	}
	select {
	case c.inbox <- e:
	default:
		entriesTotal.WithLabelValues("dropped").Inc()
		c.log.Warn("audit queue full, entry dropped",
			zap.String("order_id", e.OrderID), zap.String("action", e.Action))
	}
}

func (c *Client) send(e Entry) {
	if err := c.post(e); err != nil {
		entriesTotal.WithLabelValues("failed").Inc()
		c.log.Warn("audit log failed", zap.String("order_id", e.OrderID), zap.String("action", e.Action), zap.Error(err))
		return
	}
	entriesTotal.WithLabelValues("sent").Inc()
}

func (c *Client) post(e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("audit service: status %d", resp.StatusCode)
	}
	return nil
}

// Close stops intake; the worker flushes the queue and exits. It is safe to
// call more than once.
func (c *Client) Close() { c.once.Do(func() { close(c.done) }) }

// WaitClosed blocks until the worker has exited.
func (c *Client) WaitClosed() { <-c.closeCh }
