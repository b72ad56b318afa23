package redis

import (
	"math"
	"time"

	"github.com/xenking/nredis/internal/resp"
	"github.com/xenking/nredis/internal/transport"
)

// openStream drives the initial connection attempt and every subsequent
// reconnect: disconnected -> connecting.
func (c *Client) openStream() {
	c.mu.Lock()
	if c.state == stateEnded || c.state == stateClosing {
		c.mu.Unlock()
		return
	}
	c.state = stateConnecting
	network, addr := c.dialNetworkAddr()
	c.mu.Unlock()

	conn, err := c.dialer.Dial(network, addr)
	if err != nil {
		c.connectionGone("connect_failed", err)
		return
	}

	c.mu.Lock()
	if c.state == stateEnded || c.state == stateClosing {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.connID = nextConnID()
	c.connUUID = newConnUUID()
	c.timesConnected++
	c.emittedEnd = false
	c.state = stateConnectedNotReady
	c.readStop = make(chan struct{})
	c.readDone = make(chan struct{})
	c.opts.Logger.Debug().Str("addr", addr).Int("times_connected", c.timesConnected).Msg("redis: connected, awaiting ready check")
	c.mu.Unlock()

	c.emitConnect()

	go c.readLoop(conn)
	go c.drainLoop(conn)

	if c.opts.Password != "" {
		c.authenticate()
	}
	if c.opts.DB != 0 {
		c.selectDB()
	}

	if c.opts.NoReadyCheck {
		c.enterReady()
		return
	}
	c.runReadyCheck()
}

func (c *Client) dialNetworkAddr() (network, addr string) {
	if c.opts.Path != "" {
		return "unix", c.opts.Path
	}
	return "tcp", normalizeAddr(hostPort(c.opts.Host, c.opts.Port))
}

// authenticate issues AUTH before the ready check, swallowing "no password
// is set" as a recoverable success rather than an error.
func (c *Client) authenticate() {
	f := c.sendDirectFuture("auth", []Arg{StringArg(c.opts.Password)})
	err := f.Err()
	if err == nil {
		return
	}
	if re, ok := err.(*ReplyError); ok && containsFold(re.Message, "no password is set") {
		c.emitWarning("redis: AUTH sent but no password is set on the server")
		return
	}
	c.emitError(err)
}

func (c *Client) selectDB() {
	f := c.sendDirectFuture("select", []Arg{IntArg(int64(c.opts.DB))})
	if err := f.Err(); err != nil {
		c.emitError(err)
	}
}

func containsFold(haystack, needle string) bool {
	hl, nl := len(haystack), len(needle)
	if nl == 0 || nl > hl {
		return nl == 0
	}
	for i := 0; i+nl <= hl; i++ {
		if equalFold(haystack[i:i+nl], needle) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// enterReady transitions connected_not_ready -> ready: resubscribe first,
// then drain the offline queue, then emit ready.
func (c *Client) enterReady() {
	c.resubscribeOnReady(func() {
		c.mu.Lock()
		c.state = stateReady
		c.attempts = 1
		c.retryDelay = 200 * time.Millisecond
		c.retryTotalMs = 0
		c.mu.Unlock()

		c.drainOfflineQueue()
		c.emitReady()
	})
}

// readLoop continuously parses replies from conn and hands them to the
// dispatcher until the stream ends or a protocol error occurs.
func (c *Client) readLoop(conn *transport.Conn) {
	defer close(c.readDoneChan(conn))

	for {
		reply, err := resp.Read(conn.Reader)
		if err != nil {
			select {
			case <-c.stopChanFor(conn):
				return
			default:
			}
			c.onFatalParserError(err)
			return
		}
		c.dispatchReply(reply)

		select {
		case <-c.stopChanFor(conn):
			return
		default:
		}
	}
}

// drainLoop watches conn's write queue for the transition back under its
// high-water mark: should_buffer resets to false and a drain event fires.
// It exits via the same stop signal readLoop uses, since conn.Drain()'s
// channel is never closed on conn.Close() and would otherwise leak one
// goroutine per reconnect.
func (c *Client) drainLoop(conn *transport.Conn) {
	for {
		select {
		case <-conn.Drain():
			c.mu.Lock()
			c.shouldBuffer = false
			c.mu.Unlock()
			c.emitDrain()
		case <-c.stopChanFor(conn):
			return
		}
	}
}

// readDoneChan/stopChanFor guard against the read goroutine racing a
// reconnect that has already replaced c.readDone/c.readStop.
func (c *Client) readDoneChan(conn *transport.Conn) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		return c.readDone
	}
	return make(chan struct{}, 1)
}

func (c *Client) stopChanFor(conn *transport.Conn) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		return c.readStop
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (c *Client) haltRead() {
	c.mu.Lock()
	stop := c.readStop
	done := c.readDone
	c.mu.Unlock()
	if stop == nil {
		return
	}
	select {
	case <-stop:
	default:
		close(stop)
	}
	if done != nil {
		<-done
	}
}

// onFatalParserError handles an unrecoverable parse error: drop back to
// not-ready, flush in-flight with NR_FATAL, emit error, and re-create
// the stream.
func (c *Client) onFatalParserError(err error) {
	c.mu.Lock()
	c.state = stateConnectedNotReady
	c.mu.Unlock()

	c.flushAndError(flushAttrs{code: CodeFatal, message: "Fatal error encountered. Command aborted.", cause: err}, flushOptions{inFlight: true})
	c.emitError(err)
	c.connectionGone("parser_fatal", err)
}

// connectionGone runs the retry arithmetic for a lost or failed
// connection, in nine steps.
func (c *Client) connectionGone(reason string, cause error) {
	c.mu.Lock()
	if c.retryTimer != nil {
		c.mu.Unlock()
		return // step 1: idempotent, a retry is already pending
	}

	// step 2: tear down cork/pipeline state, reset pub/sub and monitor mode.
	c.corked = false
	c.batch = nil
	c.pubSubMode = 0
	c.monitoring = false
	wasClosing := c.state == stateClosing

	if oldConn := c.conn; oldConn != nil {
		oldConn.Close()
		c.conn = nil
	}

	// step 3: emit "end" exactly once across an outage.
	alreadyEmitted := c.emittedEnd
	c.emittedEnd = true
	c.mu.Unlock()

	if !alreadyEmitted {
		c.emitEnd()
	}

	if wasClosing {
		c.flushAndError(flushAttrs{code: CodeClosed, message: "Connection closed."}, flushOptions{inFlight: true, offline: true})
		c.mu.Lock()
		c.state = stateEnded
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	attempt := c.attempts
	totalRetry := c.retryTotalMs
	timesConnected := c.timesConnected
	c.mu.Unlock()

	// step 5: user-supplied retry strategy.
	if c.opts.RetryStrategy != nil {
		delay := c.opts.RetryStrategy(attempt, cause, totalRetry, c.opts.ConnectTimeout, timesConnected)
		if delay < 0 {
			c.flushAndError(flushAttrs{code: CodeClosed, message: "Retry strategy aborted reconnection."}, flushOptions{inFlight: true, offline: true})
			c.mu.Lock()
			c.state = stateEnded
			c.mu.Unlock()
			return
		}
		c.mu.Lock()
		c.retryDelay = delay
		c.mu.Unlock()
		c.scheduleRetry()
		return
	}

	// step 6: budget check. attempt is the count of failed connects seen
	// so far (1 on the first failure), so the budget trips only once that
	// count exceeds MaxAttempts — a MaxAttempts of 3 must let attempts
	// 1, 2, and 3 each schedule a retry, tripping on the 4th failure.
	overAttempts := c.opts.MaxAttempts > 0 && attempt > c.opts.MaxAttempts
	overBudget := totalRetry >= c.opts.ConnectTimeout
	if overAttempts || overBudget {
		err := newAbortError(CodeConnectionBroken, "Redis connection in broken state: retry aborted.", nil, cause)
		c.flushAndError(flushAttrs{code: CodeConnectionBroken, message: err.Message, cause: cause}, flushOptions{inFlight: true, offline: true})
		c.emitError(err)
		c.mu.Lock()
		c.state = stateEnded
		c.mu.Unlock()
		return
	}

	// step 7: retain or discard in-flight commands.
	if c.opts.RetryUnfulfilledCommands {
		c.mu.Lock()
		pending := c.inFlightQueue.DrainAll()
		c.offlineQueue.PushAllFront(pending)
		c.mu.Unlock()
	} else {
		c.flushAndError(flushAttrs{code: CodeUncertainState, message: "Redis connection lost and command aborted."}, flushOptions{inFlight: true})
	}

	c.mu.Lock()
	c.state = stateDisconnected
	// step 8: clamp the delay.
	if c.opts.RetryMaxDelay > 0 && c.retryDelay > c.opts.RetryMaxDelay {
		c.retryDelay = c.opts.RetryMaxDelay
	}
	if remaining := c.opts.ConnectTimeout - c.retryTotalMs; c.retryDelay > remaining {
		c.retryDelay = remaining
		if c.retryDelay < 0 {
			c.retryDelay = 0
		}
	}
	c.mu.Unlock()

	c.scheduleRetry()
}

// scheduleRetry arms the retry timer: emit reconnecting, advance
// bookkeeping, and dial again.
func (c *Client) scheduleRetry() {
	c.mu.Lock()
	delay := c.retryDelay
	attempt := c.attempts
	totalRetry := c.retryTotalMs
	timesConnected := c.timesConnected
	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.retryTotalMs += delay
		c.attempts++
		next := time.Duration(math.Round(float64(c.retryDelay) * c.opts.RetryBackoff))
		c.retryDelay = next
		c.retryTimer = nil
		c.mu.Unlock()

		c.openStream()
	})
	c.mu.Unlock()

	c.emitReconnecting(ReconnectEvent{
		Delay:          delay,
		Attempt:        attempt,
		Error:          nil,
		TotalRetryTime: totalRetry,
		TimesConnected: timesConnected,
	})
}

// timeoutGone is invoked by transport-level deadlines: it forces the
// retry budget to its ceiling so connectionGone's over-budget check
// fires immediately instead of scheduling another attempt.
func (c *Client) timeoutGone(cause error) {
	c.mu.Lock()
	c.retryTotalMs = c.opts.ConnectTimeout
	c.mu.Unlock()
	c.connectionGone("timeout", cause)
}
