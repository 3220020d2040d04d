package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/callbridge/internal/calllog"
	"github.com/ent0n29/callbridge/internal/observability"
	"github.com/ent0n29/callbridge/internal/session"
)

var testMetrics = observability.NewMetrics("lifecycle_test")

type countingCloser struct {
	mu     sync.Mutex
	closes int
}

func (c *countingCloser) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *countingCloser) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type countingWriter struct {
	countingCloser
}

func (w *countingWriter) WriteFrame([]byte) error { return nil }

func newTestCall(r *session.Registry, callSID string) (*session.Call, *countingCloser, *countingWriter) {
	call := session.NewCall(callSID, "ST-"+callSID)
	link := &countingCloser{}
	writer := &countingWriter{}
	call.SetLink(link)
	call.SetTelephony(writer)
	if err := r.Insert(call); err != nil {
		panic(err)
	}
	return call, link, writer
}

func TestTeardownClosesBothSidesAndRemovesEntry(t *testing.T) {
	r := session.NewRegistry(0)
	c := NewController(r, calllog.NewInMemoryStore(), testMetrics)
	call, link, writer := newTestCall(r, "CA1")

	c.Teardown(call, "caller_stop")

	if link.count() != 1 {
		t.Fatalf("link closes = %d, want 1", link.count())
	}
	if writer.count() != 1 {
		t.Fatalf("writer closes = %d, want 1", writer.count())
	}
	if r.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", r.ActiveCount())
	}
	if call.State() != session.StateClosed {
		t.Fatalf("state = %q, want %q", call.State(), session.StateClosed)
	}
}

func TestTeardownAbsorbsConcurrentSignals(t *testing.T) {
	r := session.NewRegistry(0)
	c := NewController(r, nil, testMetrics)
	call, link, writer := newTestCall(r, "CA1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		reason := "caller_stop"
		if i%2 == 0 {
			reason = "upstream_closed"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Teardown(call, reason)
		}()
	}
	wg.Wait()

	if link.count() != 1 || writer.count() != 1 {
		t.Fatalf("closes = (%d, %d), want (1, 1)", link.count(), writer.count())
	}
	if r.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", r.ActiveCount())
	}
}

func TestDrainEmptiesRegistry(t *testing.T) {
	r := session.NewRegistry(0)
	c := NewController(r, nil, testMetrics)
	_, linkA, _ := newTestCall(r, "CA1")
	_, linkB, _ := newTestCall(r, "CA2")

	if c.Draining() {
		t.Fatalf("Draining() = true before Drain")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Drain(ctx)

	if !c.Draining() {
		t.Fatalf("Draining() = false after Drain")
	}
	if r.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", r.ActiveCount())
	}
	if linkA.count() != 1 || linkB.count() != 1 {
		t.Fatalf("link closes = (%d, %d), want (1, 1)", linkA.count(), linkB.count())
	}
}
