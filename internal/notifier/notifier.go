// Package notifier fans committed orders out to downstream collaborators
// after the checkout transaction has returned. Deliveries never block or
// fail the checkout.
package notifier

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/metrics"

	"go.uber.org/zap"
)

// OrderPlaced is the payload sent once per committed order.
type OrderPlaced struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	ProjectID   string    `json:"projectId"`
	CustomerID  string    `json:"customerId"`
	Currency    string    `json:"currency"`
	TotalCents  int64     `json:"grandTotalCents"`
	Guest       bool      `json:"guest"`
	Items       []Item    `json:"items"`
	PlacedAt    time.Time `json:"placedAt"`
}

type Item struct {
	VariantID string `json:"variantId"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
}

// Sink delivers one notification. Deliver must be safe to repeat for the
// same order.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt OrderPlaced) error
}

type Options struct {
	Workers         int
	QueueSize       int
	MaxAttempts     int
	BaseBackoff     time.Duration
	DeliveryTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 4
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 200 * time.Millisecond
	}
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = 5 * time.Second
	}
	return o
}

// Dispatcher owns a bounded queue drained by a fixed set of workers.
type Dispatcher struct {
	sinks   []Sink
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics

	queue  chan OrderPlaced
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the workers. Call Close on shutdown.
func NewDispatcher(sinks []Sink, opts Options, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	opts = opts.withDefaults()
	if m == nil {
		m = metrics.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sinks:   sinks,
		opts:    opts,
		logger:  logging.OrNop(logger),
		metrics: m,
		queue:   make(chan OrderPlaced, opts.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Dispatch enqueues evt without blocking. It reports false when the event
// was dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Dispatch(evt OrderPlaced) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(evt, "closed")
		return false
	}
	select {
	case d.queue <- evt:
		return true
	default:
		d.drop(evt, "queue full")
		return false
	}
}

// Close stops intake and waits for queued events to drain. When ctx ends
// first, in-flight retries are abandoned and ctx's error is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		d.cancel()
		<-done
		err = ctx.Err()
	}
	d.cancel()

	for _, s := range d.sinks {
		if c, ok := s.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				d.logger.Warn("notifier: close sink", zap.String("sink", s.Name()), zap.Error(cerr))
			}
		}
	}
	return err
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for evt := range d.queue {
		for _, s := range d.sinks {
			d.deliver(s, evt)
		}
	}
}

func (d *Dispatcher) deliver(s Sink, evt OrderPlaced) {
	backoff := d.opts.BaseBackoff
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(d.ctx, d.opts.DeliveryTimeout)
		err := s.Deliver(ctx, evt)
		cancel()
		if err == nil {
			d.metrics.NotifierDeliveries.WithLabelValues(s.Name(), "ok").Inc()
			d.logger.Debug("notifier: delivered", zap.String("sink", s.Name()), zap.String("order_id", evt.OrderID), zap.Int("attempt", attempt))
			return
		}
		d.logger.Warn("notifier: delivery failed",
			zap.String("sink", s.Name()),
			zap.String("order_id", evt.OrderID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt >= d.opts.MaxAttempts || errors.Is(err, ErrPermanent) {
			d.metrics.NotifierDeliveries.WithLabelValues(s.Name(), "failed").Inc()
			return
		}
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-d.ctx.Done():
			timer.Stop()
			d.metrics.NotifierDeliveries.WithLabelValues(s.Name(), "abandoned").Inc()
			return
		}
		backoff *= 2
	}
}

func (d *Dispatcher) drop(evt OrderPlaced, reason string) {
	d.metrics.NotifierDropped.Inc()
	d.logger.Warn("notifier: dropped", zap.String("order_id", evt.OrderID), zap.String("reason", reason))
}

// ErrPermanent marks a delivery error that retrying cannot fix.
var ErrPermanent = errors.New("permanent delivery failure")
