package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlushAndErrorInFlightOnly(t *testing.T) {
	c := newTestClient()
	var gotErr error
	cmd := newCommand("get", nil, func(err error, _ interface{}) { gotErr = err }, false)
	c.inFlightQueue.PushBack(cmd)
	c.offlineQueue.PushBack(newCommand("set", nil, nil, false))

	c.flushAndError(flushAttrs{code: CodeUncertainState, message: "lost"}, flushOptions{inFlight: true})

	require.Error(t, gotErr)
	ae := gotErr.(*AbortError)
	assert.Equal(t, CodeUncertainState, ae.Code)
	assert.Equal(t, "lost It might have been processed.", ae.Message)
	assert.Equal(t, 1, c.offlineQueue.Len(), "offline queue untouched when inFlight-only flush requested")
}

func TestFlushAndErrorBothQueuesAppendsProcessedHintOnlyToInFlight(t *testing.T) {
	c := newTestClient()
	var inFlightErr, offlineErr error
	c.inFlightQueue.PushBack(newCommand("get", nil, func(err error, _ interface{}) { inFlightErr = err }, false))
	c.offlineQueue.PushBack(newCommand("set", nil, func(err error, _ interface{}) { offlineErr = err }, false))

	c.flushAndError(flushAttrs{code: CodeClosed, message: "Connection closed."}, flushOptions{inFlight: true, offline: true})

	require.Error(t, inFlightErr)
	require.Error(t, offlineErr)
	assert.Contains(t, inFlightErr.Error(), "It might have been processed.")
	assert.NotContains(t, offlineErr.Error(), "It might have been processed.")
}

func TestFlushAndErrorAggregatesSinklessInDebugMode(t *testing.T) {
	c := newTestClient()
	c.opts.Debug = true
	var gotErr error
	c.hooks.OnError = func(err error) { gotErr = err }
	go c.runEventLoop()
	defer close(c.eventStop)

	c.inFlightQueue.PushBack(newCommand("get", nil, nil, false))
	c.inFlightQueue.PushBack(newCommand("set", nil, nil, false))

	c.flushAndError(flushAttrs{code: CodeClosed, message: "closed"}, flushOptions{inFlight: true})
	waitForEvent(c)

	require.Error(t, gotErr)
	_, ok := gotErr.(*AggregateError)
	assert.True(t, ok)
}

func TestFlushAndErrorSinklessSingleNotAggregated(t *testing.T) {
	c := newTestClient()
	c.opts.Debug = true
	var gotErr error
	c.hooks.OnError = func(err error) { gotErr = err }
	go c.runEventLoop()
	defer close(c.eventStop)

	c.inFlightQueue.PushBack(newCommand("get", nil, nil, false))
	c.flushAndError(flushAttrs{code: CodeClosed, message: "closed"}, flushOptions{inFlight: true})
	waitForEvent(c)

	require.Error(t, gotErr)
	_, ok := gotErr.(*AggregateError)
	assert.False(t, ok)
}
