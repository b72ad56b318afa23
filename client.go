package redis

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/nredis/internal/transport"
)

// connState is the controller's discrete state: disconnected ->
// connecting -> connected_not_ready -> ready, with closing/ended as
// terminal branches.
type connState int32

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnectedNotReady
	stateReady
	stateClosing
	stateEnded
)

func (s connState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateConnecting:
		return "connecting"
	case stateConnectedNotReady:
		return "connected_not_ready"
	case stateReady:
		return "ready"
	case stateClosing:
		return "closing"
	case stateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// clientCounter backs the process-lifetime connection ID accessor.
var clientCounter uint64

// Client drives one stream-oriented connection to a single Redis node
// through a pipelined command protocol. A single mutex serializes the
// whole controller — user calls, transport callbacks, the read-loop's
// parsed replies, and timers all take mu.
type Client struct {
	opts Options

	mu    sync.Mutex
	state connState

	// retry arithmetic
	attempts       int
	retryDelay     time.Duration
	retryTotalMs   time.Duration
	timesConnected int
	retryTimer     *time.Timer

	emittedEnd   bool
	closingFlush bool // end(flush) vs end(!flush)
	quitPending  bool

	monitoring   bool
	pubSubMode   int
	replyMode    ReplyMode
	shouldBuffer bool

	offlineQueue  *cmdQueue
	inFlightQueue *cmdQueue

	subs subscriptionSet

	serverInfo map[string]string

	corked      bool
	batch       [][]byte
	fireStrings bool

	conn      *transport.Conn
	connID    uint64
	connUUID  string
	readStop  chan struct{}
	readDone  chan struct{}

	hooks Hooks

	eventCh   chan func()
	eventStop chan struct{}

	dialer transport.Dialer
}

// NewClient constructs a Client and begins connecting in the background;
// the dial happens on its own goroutine rather than on first use.
func NewClient(opts Options, hooks Hooks) *Client {
	opts.setDefaults()

	c := &Client{
		opts:          opts,
		offlineQueue:  newCmdQueue(),
		inFlightQueue: newCmdQueue(),
		subs:          newSubscriptionSet(),
		replyMode:     ReplyOn,
		hooks:         hooks,
		eventCh:       make(chan func(), 64),
		eventStop:     make(chan struct{}),
		dialer: transport.Dialer{
			DialTimeout: opts.ConnectTimeout,
			TLSConfig:   opts.TLSConfig,
		},
		retryDelay: 200 * time.Millisecond,
		attempts:   1,
	}

	go c.runEventLoop()
	go c.openStream()

	return c
}

// ConnectionID returns a process-lifetime diagnostic identifier, refreshed
// on every successful connect.
func (c *Client) ConnectionID() (uint64, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID, c.connUUID
}

// CommandQueueLength reports the in-flight queue length.
func (c *Client) CommandQueueLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlightQueue.Len()
}

// OfflineQueueLength reports the offline queue length.
func (c *Client) OfflineQueueLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offlineQueue.Len()
}

// ShouldBuffer reports the current backpressure hint.
func (c *Client) ShouldBuffer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldBuffer
}

// ServerInfo returns the last parsed INFO snapshot, or nil before the
// first successful INFO call.
func (c *Client) ServerInfo() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.serverInfo == nil {
		return nil
	}
	out := make(map[string]string, len(c.serverInfo))
	for k, v := range c.serverInfo {
		out[k] = v
	}
	return out
}

// SendCommand is the generic entry point: it either writes immediately,
// corks into the pipeline batch, or parks the command in the offline
// queue, returning the backpressure hint. When sink is nil the command
// still completes: a success value is discarded, and an error goes to the
// OnError hook.
func (c *Client) SendCommand(name string, args []Arg, sink Sink) bool {
	cmd := newCommand(name, args, sink, false)
	return c.dispatchSend(cmd)
}

// SendCommandOrigin behaves like SendCommand but captures a lightweight
// call-site tag on the command, used to enrich future error stacks.
func (c *Client) SendCommandOrigin(name string, args []Arg, sink Sink) bool {
	cmd := newCommand(name, args, sink, true)
	return c.dispatchSend(cmd)
}

// Future resolves a command's completion as a channel-delivered result,
// an alternative to the callback-style Sink for callers that prefer a
// blocking wait.
type Future struct {
	done  chan struct{}
	err   error
	value interface{}
}

// Err blocks until the command completes and returns its error, if any.
func (f *Future) Err() error {
	<-f.done
	return f.err
}

// Result blocks until the command completes and returns (value, error).
func (f *Future) Result() (interface{}, error) {
	<-f.done
	return f.value, f.err
}

// SendCommandFuture is the future-returning variant of SendCommand, used
// where a callback is less convenient than a blocking wait.
func (c *Client) SendCommandFuture(name string, args []Arg) *Future {
	f := &Future{done: make(chan struct{})}
	cmd := newCommand(name, args, func(err error, value interface{}) {
		f.err, f.value = err, value
		close(f.done)
	}, false)
	c.dispatchSend(cmd)
	return f
}

// sendDirectFuture bypasses the ready-state gate in dispatchSend, writing
// immediately regardless of connState. Used only by the controller's own
// bootstrapping traffic (AUTH, SELECT, and the INFO ready check) issued
// while the connection is still connected_not_ready.
func (c *Client) sendDirectFuture(name string, args []Arg) *Future {
	f := &Future{done: make(chan struct{})}
	cmd := newCommand(name, args, func(err error, value interface{}) {
		f.err, f.value = err, value
		close(f.done)
	}, false)
	c.writeDirect(cmd)
	return f
}

// Duplicate constructs a new Client from the same options with zero or
// more fields overridden. The new client starts a fresh connection and
// subscription set; it does not share queues with the original.
func (c *Client) Duplicate(override func(*Options), hooks Hooks) *Client {
	c.mu.Lock()
	opts := c.opts
	c.mu.Unlock()

	if override != nil {
		override(&opts)
	}
	return NewClient(opts, hooks)
}

// End terminates the connection immediately. When flush is true, both
// queues are drained with CodeClosed before the transport is destroyed;
// when false, queued commands are simply abandoned (their sinks are
// never called). Calling End twice is a no-op after the first.
func (c *Client) End(flush bool) {
	c.mu.Lock()
	if c.state == stateEnded || c.state == stateClosing {
		c.mu.Unlock()
		return
	}
	c.state = stateClosing
	c.closingFlush = flush
	conn := c.conn
	c.mu.Unlock()

	if flush {
		c.flushAndError(flushAttrs{code: CodeClosed, message: "Connection closed by End(true)."}, flushOptions{inFlight: true, offline: true})
	}

	if conn != nil {
		c.haltRead()
		conn.Close()
	}

	c.mu.Lock()
	c.state = stateEnded
	c.mu.Unlock()

	c.emitEnd()
	close(c.eventStop)
}

// Quit marks the client closing, routes a QUIT command through
// dispatchSend, and destroys the transport once that command completes.
// Because the state is already closing when QUIT is routed, the command
// is completed locally with NR_CLOSED and is not written to the server;
// that NR_CLOSED is swallowed into a success, so Quit always completes
// with a nil error.
func (c *Client) Quit(cb func(error)) {
	c.mu.Lock()
	if c.state == stateEnded {
		c.mu.Unlock()
		if cb != nil {
			cb(nil)
		}
		return
	}
	c.state = stateClosing
	c.quitPending = true
	c.mu.Unlock()

	done := func(err error) {
		if ae, ok := err.(*AbortError); ok && ae.Code == CodeClosed {
			err = nil
		}
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			c.haltRead()
			conn.Close()
		}
		c.mu.Lock()
		c.state = stateEnded
		c.mu.Unlock()
		c.emitEnd()
		if cb != nil {
			cb(err)
		}
	}

	cmd := newCommand("quit", nil, func(err error, _ interface{}) { done(err) }, false)
	c.dispatchSend(cmd)
}

func nextConnID() uint64 { return atomic.AddUint64(&clientCounter, 1) }

func newConnUUID() string { return uuid.NewString() }
