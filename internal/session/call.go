package session

import (
	"io"
	"sync"
	"time"
)

// State tracks a call through its lifetime on the bridge.
type State string

const (
	StateConnecting State = "connecting"
	StateReady      State = "ready"
	StateActive     State = "active"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// legalTransitions enumerates the allowed state moves. Closing and closed are
// reachable from anywhere because either socket can fail at any time.
var legalTransitions = map[State][]State{
	StateConnecting: {StateReady, StateClosing, StateClosed},
	StateReady:      {StateActive, StateClosing, StateClosed},
	StateActive:     {StateClosing, StateClosed},
	StateClosing:    {StateClosed},
	StateClosed:     {},
}

// FrameWriter delivers an encoded frame to the telephony side of a call.
type FrameWriter interface {
	WriteFrame(data []byte) error
	Close() error
}

// Call is the bridge's view of one phone call: both socket handles, the state
// machine, and the one-shot greeting flag.
type Call struct {
	CallSID   string
	StreamSID string
	StartedAt time.Time

	mu        sync.Mutex
	state     State
	greeted   bool
	telephony FrameWriter
	link      io.Closer
	teardown  sync.Once
}

func NewCall(callSID, streamSID string) *Call {
	return &Call{
		CallSID:   callSID,
		StreamSID: streamSID,
		StartedAt: time.Now().UTC(),
		state:     StateConnecting,
	}
}

func (c *Call) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Advance moves the call to the given state if the transition is legal and
// reports whether it happened. Illegal transitions leave the state untouched.
func (c *Call) Advance(to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, next := range legalTransitions[c.state] {
		if next == to {
			c.state = to
			return true
		}
	}
	return false
}

// MarkGreeted flips the greeting flag and reports whether this caller won the
// flip. At most one caller ever sees true.
func (c *Call) MarkGreeted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.greeted {
		return false
	}
	c.greeted = true
	return true
}

func (c *Call) Greeted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.greeted
}

func (c *Call) SetTelephony(w FrameWriter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.telephony = w
}

func (c *Call) Telephony() FrameWriter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.telephony
}

func (c *Call) SetLink(link io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.link = link
}

func (c *Call) Link() io.Closer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

// TeardownOnce runs f the first time it is called for this call and never
// again, regardless of which side initiated teardown.
func (c *Call) TeardownOnce(f func()) {
	c.teardown.Do(f)
}

func (c *Call) Age() time.Duration {
	return time.Since(c.StartedAt)
}
