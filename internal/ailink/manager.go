package ailink

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/callbridge/internal/observability"
	"github.com/ent0n29/callbridge/internal/protocol"
	"github.com/ent0n29/callbridge/internal/reliability"
	"github.com/ent0n29/callbridge/internal/session"
)

const livePath = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Config holds everything the manager needs to open one live connection.
type Config struct {
	APIKey        string
	WSBaseURL     string
	Setup         protocol.SetupConfig
	Greeting      string
	AudioMIMEType string
	SetupAckGrace time.Duration
	DialAttempts  int
	PendingMax    int
}

// Manager opens and owns live-generation connections, one per call.
type Manager struct {
	cfg      Config
	metrics  *observability.Metrics
	onClosed func(*session.Call, string)
}

func NewManager(cfg Config, metrics *observability.Metrics) *Manager {
	if cfg.DialAttempts <= 0 {
		cfg.DialAttempts = 3
	}
	if cfg.PendingMax <= 0 {
		cfg.PendingMax = 64
	}
	if cfg.SetupAckGrace <= 0 {
		cfg.SetupAckGrace = 3 * time.Second
	}
	if cfg.AudioMIMEType == "" {
		cfg.AudioMIMEType = "audio/pcm;rate=8000"
	}
	return &Manager{cfg: cfg, metrics: metrics}
}

// SetClosedHook installs the callback invoked when a link closes from the
// upstream side. Wired to the lifecycle controller at startup.
func (m *Manager) SetClosedHook(hook func(*session.Call, string)) {
	m.onClosed = hook
}

func (m *Manager) liveURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(m.cfg.WSBaseURL, "/") + livePath)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", m.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open dials the live endpoint for the call and sends the setup frame. It
// returns as soon as the socket is up; readiness arrives asynchronously via
// the setup ack or the configured grace period.
func (m *Manager) Open(ctx context.Context, call *session.Call) (*Link, error) {
	target, err := m.liveURL()
	if err != nil {
		return nil, fmt.Errorf("live url: %w", err)
	}

	var conn *websocket.Conn
	for attempt := 0; attempt < m.cfg.DialAttempts; attempt++ {
		var resp *http.Response
		conn, resp, err = websocket.DefaultDialer.DialContext(ctx, target, nil)
		if err == nil {
			break
		}
		retryable := resp != nil && reliability.IsRetryableHandshakeStatus(resp.StatusCode)
		if !retryable && resp != nil {
			break
		}
		if attempt < m.cfg.DialAttempts-1 {
			m.metrics.UpstreamEvents.WithLabelValues("dial_retry").Inc()
			backoff := reliability.ExponentialBackoff(attempt, 250*time.Millisecond, 2*time.Second)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("dial live websocket: %w", err)
	}

	setup, err := protocol.BuildSetup(m.cfg.Setup)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("build setup frame: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, setup); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send setup frame: %w", err)
	}

	l := &Link{
		mgr:      m,
		call:     call,
		conn:     conn,
		state:    linkConnecting,
		dialedAt: time.Now(),
	}
	l.graceTimer = time.AfterFunc(m.cfg.SetupAckGrace, func() {
		// No ack within the grace period: assume the stream is usable rather
		// than hold caller audio forever.
		if l.markReady() {
			m.metrics.UpstreamEvents.WithLabelValues("setup_grace").Inc()
			log.Printf("call %s: live setup ack grace elapsed, proceeding", call.CallSID)
		}
	})
	call.SetLink(l)
	go l.readLoop()
	return l, nil
}
