package ailink

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/callbridge/internal/protocol"
	"github.com/ent0n29/callbridge/internal/session"
)

type linkState string

const (
	linkConnecting linkState = "connecting"
	linkReady      linkState = "ready"
	linkActive     linkState = "active"
	linkClosed     linkState = "closed"
)

// Link is the outbound live-generation connection for one call. Audio that
// arrives before the setup ack is queued (bounded) and flushed in order once
// the link is ready.
type Link struct {
	mgr  *Manager
	call *session.Call
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu         sync.Mutex
	state      linkState
	pending    []string
	greetTimer *time.Timer
	graceTimer *time.Timer
	dialedAt   time.Time
}

func (l *Link) State() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return string(l.state)
}

// markReady promotes a connecting link and flushes queued audio in arrival
// order. Chunks arriving mid-flush keep queueing until the queue is empty, so
// nothing overtakes older audio. Reports whether this caller promoted.
func (l *Link) markReady() bool {
	l.mu.Lock()
	for l.state == linkConnecting && len(l.pending) > 0 {
		queued := l.pending
		l.pending = nil
		l.mu.Unlock()
		for _, payload := range queued {
			l.sendAudio(payload)
		}
		l.mu.Lock()
	}
	if l.state != linkConnecting {
		l.mu.Unlock()
		return false
	}
	l.state = linkReady
	l.mu.Unlock()

	l.call.Advance(session.StateReady)
	return true
}

// markActive records the first audio exchange in either direction.
func (l *Link) markActive() {
	l.mu.Lock()
	if l.state == linkReady {
		l.state = linkActive
	}
	l.mu.Unlock()
	l.call.Advance(session.StateActive)
}

// ScheduleGreeting arms the one-shot greeting timer. If the call closes
// before it fires, the firing is a no-op.
func (l *Link) ScheduleGreeting(delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == linkClosed || l.greetTimer != nil {
		return
	}
	l.greetTimer = time.AfterFunc(delay, l.fireGreeting)
}

func (l *Link) fireGreeting() {
	l.mu.Lock()
	closed := l.state == linkClosed
	l.mu.Unlock()
	if closed {
		return
	}
	if !l.call.MarkGreeted() {
		return
	}

	frame, err := protocol.BuildTextTurn(l.mgr.cfg.Greeting)
	if err != nil {
		log.Printf("call %s: build greeting turn: %v", l.call.CallSID, err)
		return
	}
	if err := l.write(frame); err != nil {
		log.Printf("call %s: send greeting: %v", l.call.CallSID, err)
		return
	}
	l.mgr.metrics.UpstreamEvents.WithLabelValues("greeting_sent").Inc()
}

// RelayInbound forwards one caller audio payload to the live stream. Before
// readiness the payload is queued; on overflow the newest chunk is dropped so
// the start of the caller's speech survives.
func (l *Link) RelayInbound(payload string) {
	l.mu.Lock()
	switch l.state {
	case linkClosed:
		l.mu.Unlock()
		log.Printf("call %s: dropping audio chunk, live link closed", l.call.CallSID)
		return
	case linkConnecting:
		if len(l.pending) >= l.mgr.cfg.PendingMax {
			l.mu.Unlock()
			l.mgr.metrics.PendingAudioDrops.Inc()
			return
		}
		l.pending = append(l.pending, payload)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	l.sendAudio(payload)
	l.markActive()
}

func (l *Link) sendAudio(payload string) {
	frame, err := protocol.BuildAudioChunk(l.mgr.cfg.AudioMIMEType, payload)
	if err != nil {
		log.Printf("call %s: build audio chunk: %v", l.call.CallSID, err)
		return
	}
	if err := l.write(frame); err != nil {
		log.Printf("call %s: relay audio upstream: %v", l.call.CallSID, err)
	}
}

func (l *Link) write(data []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l *Link) readLoop() {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			break
		}

		msg, err := protocol.ParseLiveMessage(data)
		if err != nil {
			l.mgr.metrics.MalformedFrames.WithLabelValues("upstream").Inc()
			log.Printf("call %s: malformed live frame dropped: %v", l.call.CallSID, err)
			continue
		}

		switch m := msg.(type) {
		case protocol.SetupComplete:
			if l.markReady() {
				l.mgr.metrics.UpstreamEvents.WithLabelValues("setup_ack").Inc()
				l.mgr.metrics.ObserveSetupAckLatency(time.Since(l.dialedAt))
			}
		case protocol.InlineAudio:
			l.deliverInline(m)
		case protocol.Unhandled:
			l.mgr.metrics.UpstreamEvents.WithLabelValues("unhandled_frame").Inc()
		}
	}

	l.shutdown()
	if hook := l.mgr.onClosed; hook != nil {
		hook(l.call, "upstream_closed")
	}
}

func (l *Link) deliverInline(audio protocol.InlineAudio) {
	l.markActive()

	frame, err := protocol.EncodeMediaFrame(l.call.StreamSID, audio.Data)
	if err != nil {
		log.Printf("call %s: encode media frame: %v", l.call.CallSID, err)
		return
	}

	w := l.call.Telephony()
	if w == nil {
		log.Printf("call %s: dropping model audio, telephony writer gone", l.call.CallSID)
		return
	}
	if err := w.WriteFrame(frame); err != nil {
		log.Printf("call %s: relay audio to caller: %v", l.call.CallSID, err)
		return
	}
	l.mgr.metrics.MediaFrames.WithLabelValues("outbound").Inc()
}

// Close tears the connection down. Safe to call multiple times; it also
// cancels a pending greeting.
func (l *Link) Close() error {
	l.shutdown()
	return nil
}

func (l *Link) shutdown() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.state = linkClosed
		l.pending = nil
		if l.greetTimer != nil {
			l.greetTimer.Stop()
		}
		if l.graceTimer != nil {
			l.graceTimer.Stop()
		}
		l.mu.Unlock()
		_ = l.conn.Close()
	})
}
