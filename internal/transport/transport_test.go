package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	return newConn(client), server
}

func TestWriteDeliversBytes(t *testing.T) {
	c, server := pipeConn(t)
	defer c.Close()

	done := make(chan struct{})
	var got []byte
	go func() {
		buf := make([]byte, 5)
		n, _ := server.Read(buf)
		got = buf[:n]
		close(done)
	}()

	writable := c.Write([]byte("hello"))
	assert.True(t, writable)

	select {
	case <-done:
		assert.Equal(t, "hello", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write to be delivered")
	}
}

func TestWriteFalseAtHighWaterMark(t *testing.T) {
	c, server := pipeConn(t)
	defer c.Close()
	defer server.Close()

	// Nobody drains server's side, so pending accumulates exactly as
	// queued: a write that brings pending to HighWaterMark itself reports
	// false, matching "< HighWaterMark" rather than "<=".
	big := make([]byte, HighWaterMark)
	writable := c.Write(big)
	assert.False(t, writable)
}

func TestWriteTrueBelowHighWaterMark(t *testing.T) {
	c, server := pipeConn(t)
	defer c.Close()
	defer server.Close()

	writable := c.Write(make([]byte, HighWaterMark-1))
	assert.True(t, writable)
}

func TestReaderExposesBytes(t *testing.T) {
	c, server := pipeConn(t)
	defer c.Close()
	defer server.Close()

	go server.Write([]byte("+OK\r\n"))

	line, err := c.Reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "+OK\r\n", line)
}

func TestCloseIsIdempotent(t *testing.T) {
	c, server := pipeConn(t)
	defer server.Close()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.False(t, c.Write([]byte("x")))
}
