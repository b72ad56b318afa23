package redis

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/nredis/internal/transport"
)

func TestContainsFold(t *testing.T) {
	assert.True(t, containsFold("ERR Client sent AUTH, but no password is set", "no password is set"))
	assert.True(t, containsFold("NO PASSWORD IS SET", "no password is set"))
	assert.False(t, containsFold("short", "this needle is longer than the haystack"))
	assert.True(t, containsFold("anything", ""))
}

func TestEqualFold(t *testing.T) {
	assert.True(t, equalFold("ABC", "abc"))
	assert.False(t, equalFold("ABC", "abd"))
	assert.False(t, equalFold("AB", "abc"))
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "ready", stateReady.String())
	assert.Equal(t, "disconnected", stateDisconnected.String())
	assert.Equal(t, "unknown", connState(99).String())
}

func TestDialNetworkAddrUsesUnixWhenPathSet(t *testing.T) {
	c := newTestClient()
	c.opts.Path = "/tmp/redis.sock"
	network, addr := c.dialNetworkAddr()
	assert.Equal(t, "unix", network)
	assert.Equal(t, "/tmp/redis.sock", addr)
}

func TestDialNetworkAddrDefaultsToTCP(t *testing.T) {
	c := newTestClient()
	c.opts.Host = "127.0.0.1"
	c.opts.Port = 6379
	network, addr := c.dialNetworkAddr()
	assert.Equal(t, "tcp", network)
	assert.Equal(t, "127.0.0.1:6379", addr)
}

// TestConnectionGoneBudgetTripsOnlyAfterMaxAttemptsExceeded exercises three
// failed connects with MaxAttempts=3: each must schedule a retry and emit
// reconnecting (attempts 1, 2, and 3), and only a fourth failure may trip
// CONNECTION_BROKEN.
func TestConnectionGoneBudgetTripsOnlyAfterMaxAttemptsExceeded(t *testing.T) {
	c := newTestClient()
	c.opts.MaxAttempts = 3
	c.opts.ConnectTimeout = time.Hour
	c.attempts = 1
	// Keep the real retry timer from ever firing during the test; each
	// iteration stops and clears it by hand to simulate the next failed
	// dial attempt.
	c.retryDelay = time.Hour
	c.state = stateConnecting

	var reconnectAttempts []int
	var brokenErr error
	c.hooks.OnReconnecting = func(ev ReconnectEvent) { reconnectAttempts = append(reconnectAttempts, ev.Attempt) }
	c.hooks.OnError = func(err error) { brokenErr = err }
	go c.runEventLoop()
	defer close(c.eventStop)

	for i := 0; i < 3; i++ {
		c.connectionGone("connect_failed", errors.New("boom"))
		waitForEvent(c)

		c.mu.Lock()
		require.NotNil(t, c.retryTimer, "iteration %d should have scheduled a retry", i+1)
		c.retryTimer.Stop()
		c.retryTimer = nil
		c.attempts++
		c.mu.Unlock()
	}
	assert.Equal(t, []int{1, 2, 3}, reconnectAttempts)
	assert.Nil(t, brokenErr)

	c.mu.Lock()
	stateAfterThree := c.state
	c.mu.Unlock()
	assert.NotEqual(t, stateEnded, stateAfterThree)

	// The fourth failed connect exceeds MaxAttempts and trips CONNECTION_BROKEN.
	c.connectionGone("connect_failed", errors.New("boom"))
	waitForEvent(c)

	require.Error(t, brokenErr)
	ae, ok := brokenErr.(*AbortError)
	require.True(t, ok)
	assert.Equal(t, CodeConnectionBroken, ae.Code)

	c.mu.Lock()
	finalState := c.state
	c.mu.Unlock()
	assert.Equal(t, stateEnded, finalState)
}

// TestDrainLoopResetsShouldBufferAndEmitsDrain exercises the transport's
// real high-water-mark/drain signal against drainLoop, confirming
// should_buffer resets once the peer reads enough to drop pending back
// under the mark.
func TestDrainLoopResetsShouldBufferAndEmitsDrain(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		sc, acceptErr := ln.Accept()
		require.NoError(t, acceptErr)
		serverConnCh <- sc
	}()

	conn, err := (transport.Dialer{}).Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	serverConn := <-serverConnCh
	defer serverConn.Close()

	c := newTestClient()
	c.conn = conn
	c.readStop = make(chan struct{})
	c.readDone = make(chan struct{})

	drained := make(chan struct{}, 1)
	c.hooks.OnDrain = func() { drained <- struct{}{} }
	go c.runEventLoop()
	defer close(c.eventStop)

	go c.drainLoop(conn)

	// Nobody reads on the server side yet, so this write fills the queue
	// past HighWaterMark and conn.Write reports false, just as
	// writeFragments does.
	big := make([]byte, transport.HighWaterMark)
	require.False(t, conn.Write(big))
	c.mu.Lock()
	c.shouldBuffer = true
	c.mu.Unlock()

	// Reading it back on the server side drops pending under the mark
	// again, firing the drain signal.
	go func() {
		buf := make([]byte, len(big))
		for read := 0; read < len(buf); {
			n, readErr := serverConn.Read(buf[read:])
			if readErr != nil {
				return
			}
			read += n
		}
	}()

	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for drain event")
	}

	c.mu.Lock()
	shouldBuffer := c.shouldBuffer
	c.mu.Unlock()
	assert.False(t, shouldBuffer)

	close(c.readStop)
}
