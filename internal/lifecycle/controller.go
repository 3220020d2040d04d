package lifecycle

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ent0n29/callbridge/internal/calllog"
	"github.com/ent0n29/callbridge/internal/observability"
	"github.com/ent0n29/callbridge/internal/session"
)

// Controller guarantees exactly-once, order-independent teardown of a call's
// two sockets and coordinates process-wide drain.
type Controller struct {
	registry *session.Registry
	store    calllog.Store
	metrics  *observability.Metrics

	mu       sync.Mutex
	draining bool
}

func NewController(registry *session.Registry, store calllog.Store, metrics *observability.Metrics) *Controller {
	return &Controller{registry: registry, store: store, metrics: metrics}
}

// Draining reports whether shutdown has begun; the gateway rejects new
// streams while it is true.
func (c *Controller) Draining() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draining
}

// Teardown closes both of the call's sockets and removes the registry entry.
// Both sides funnel their close/error events here; whichever arrives second
// is absorbed.
func (c *Controller) Teardown(call *session.Call, reason string) {
	call.TeardownOnce(func() {
		call.Advance(session.StateClosing)

		if link := call.Link(); link != nil {
			if err := link.Close(); err != nil {
				log.Printf("call %s: close live link: %v", call.CallSID, err)
			}
		}
		if w := call.Telephony(); w != nil {
			if err := w.Close(); err != nil {
				log.Printf("call %s: close telephony socket: %v", call.CallSID, err)
			}
		}

		call.Advance(session.StateClosed)
		c.registry.Remove(call.CallSID)
		c.metrics.ActiveCalls.Set(float64(c.registry.ActiveCount()))
		c.metrics.CallEvents.WithLabelValues("ended").Inc()
		log.Printf("call %s torn down (%s), age %s", call.CallSID, reason, call.Age().Round(time.Millisecond))

		if c.store != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := c.store.CallEnded(ctx, call.CallSID, reason); err != nil {
					log.Printf("call %s: record call end: %v", call.CallSID, err)
				}
			}()
		}
	})
}

// Drain rejects new streams, tears down every active call, and waits for the
// registry to empty or the context to expire.
func (c *Controller) Drain(ctx context.Context) {
	c.mu.Lock()
	c.draining = true
	c.mu.Unlock()

	calls := c.registry.Snapshot()
	log.Printf("draining %d active call(s)", len(calls))
	for _, call := range calls {
		c.Teardown(call, "shutdown")
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for c.registry.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			log.Printf("drain grace elapsed with %d call(s) remaining", c.registry.ActiveCount())
			return
		case <-ticker.C:
		}
	}
}
