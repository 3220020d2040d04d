package gateway

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/callbridge/internal/calllog"
	"github.com/ent0n29/callbridge/internal/observability"
	"github.com/ent0n29/callbridge/internal/protocol"
	"github.com/ent0n29/callbridge/internal/session"
)

// AILink is the gateway's view of the paired live connection.
type AILink interface {
	RelayInbound(payload string)
	ScheduleGreeting(delay time.Duration)
	Close() error
}

// LinkManager opens the paired live connection for a new call.
type LinkManager interface {
	Open(ctx context.Context, call *session.Call) (AILink, error)
}

// Lifecycle tears calls down and gates new streams during drain.
type Lifecycle interface {
	Teardown(call *session.Call, reason string)
	Draining() bool
}

type connState int

const (
	connInit connState = iota
	connStreaming
)

const readDeadline = 120 * time.Second

// Gateway terminates inbound telephony media-stream websockets and drives
// session creation and teardown.
type Gateway struct {
	links          LinkManager
	lifecycle      Lifecycle
	registry       *session.Registry
	store          calllog.Store
	metrics        *observability.Metrics
	greetingDelay  time.Duration
	malformedLimit int
}

func New(links LinkManager, lc Lifecycle, registry *session.Registry, store calllog.Store, metrics *observability.Metrics, greetingDelay time.Duration, malformedLimit int) *Gateway {
	if malformedLimit <= 0 {
		malformedLimit = 10
	}
	return &Gateway{
		links:          links,
		lifecycle:      lc,
		registry:       registry,
		store:          store,
		metrics:        metrics,
		greetingDelay:  greetingDelay,
		malformedLimit: malformedLimit,
	}
}

// HandleConn owns one upgraded telephony connection until it closes. It runs
// the per-connection state machine and funnels teardown through the
// lifecycle controller exactly once.
func (g *Gateway) HandleConn(ctx context.Context, conn *websocket.Conn) {
	writer := newConnWriter(conn, g.metrics)
	go writer.run()
	defer writer.Close()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	state := connInit
	var call *session.Call
	var link AILink
	malformed := 0
	reason := "caller_disconnect"

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		if msgType != websocket.TextMessage {
			continue
		}

		msg, err := protocol.ParseMediaMessage(data)
		if err != nil {
			g.metrics.MalformedFrames.WithLabelValues("telephony").Inc()
			log.Printf("malformed telephony frame dropped: %v", err)
			malformed++
			if malformed >= g.malformedLimit {
				reason = "malformed_flood"
				break readLoop
			}
			continue
		}

		switch m := msg.(type) {
		case protocol.StartEvent:
			if state != connInit {
				log.Printf("call %s: duplicate start on open stream ignored", m.CallSID)
				continue
			}
			if g.lifecycle.Draining() {
				g.metrics.CallEvents.WithLabelValues("rejected_draining").Inc()
				log.Printf("call %s: rejected, bridge is draining", m.CallSID)
				break readLoop
			}

			call, link = g.startCall(ctx, m, writer)
			if call == nil {
				break readLoop
			}
			state = connStreaming

		case protocol.MediaEvent:
			if state != connStreaming || link == nil {
				continue
			}
			g.metrics.MediaFrames.WithLabelValues("inbound").Inc()
			link.RelayInbound(m.Payload)

		case protocol.StopEvent:
			reason = "caller_stop"
			break readLoop
		}
	}

	if call != nil {
		g.lifecycle.Teardown(call, reason)
	}
}

// startCall registers the session and opens the paired live connection.
// Returns nils when the stream must be rejected; the caller closes it.
func (g *Gateway) startCall(ctx context.Context, start protocol.StartEvent, writer *connWriter) (*session.Call, AILink) {
	call := session.NewCall(start.CallSID, start.StreamSID)
	call.SetTelephony(writer)

	if err := g.registry.Insert(call); err != nil {
		if errors.Is(err, session.ErrDuplicateCall) {
			g.metrics.CallEvents.WithLabelValues("rejected_duplicate").Inc()
			log.Printf("call %s: duplicate start rejected, keeping existing session", start.CallSID)
		} else {
			log.Printf("call %s: register failed: %v", start.CallSID, err)
		}
		return nil, nil
	}
	g.metrics.CallEvents.WithLabelValues("started").Inc()
	g.metrics.ActiveCalls.Set(float64(g.registry.ActiveCount()))
	log.Printf("call %s: stream %s started", start.CallSID, start.StreamSID)

	if g.store != nil {
		go func() {
			storeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := g.store.CallStarted(storeCtx, calllog.CallRecord{
				CallSID:   start.CallSID,
				StreamSID: start.StreamSID,
				StartedAt: call.StartedAt,
			}); err != nil {
				log.Printf("call %s: record call start: %v", start.CallSID, err)
			}
		}()
	}

	link, err := g.links.Open(ctx, call)
	if err != nil {
		log.Printf("call %s: live connection failed: %v", start.CallSID, err)
		g.metrics.CallEvents.WithLabelValues("upstream_connect_failure").Inc()
		g.lifecycle.Teardown(call, "upstream_connect_failure")
		return nil, nil
	}
	call.SetLink(link)
	link.ScheduleGreeting(g.greetingDelay)
	return call, link
}
