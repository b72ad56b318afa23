package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/nredis/internal/resp"
)

func newTestClient() *Client {
	c := &Client{
		offlineQueue:  newCmdQueue(),
		inFlightQueue: newCmdQueue(),
		subs:          newSubscriptionSet(),
		replyMode:     ReplyOn,
		eventCh:       make(chan func(), 64),
		eventStop:     make(chan struct{}),
	}
	c.opts.setDefaults()
	return c
}

func arrayReply(elems ...resp.Reply) resp.Reply {
	return resp.Reply{Type: resp.Array, Array: elems}
}

func bulkReply(s string) resp.Reply { return resp.Reply{Type: resp.Bulk, Bulk: []byte(s)} }

func intReply(n int64) resp.Reply { return resp.Reply{Type: resp.Integer, Integer: n} }

func TestArmPubSubModeSetsFromQueueLength(t *testing.T) {
	c := newTestClient()
	c.inFlightQueue.PushBack(&Command{Name: "get"})
	c.armPubSubMode()
	assert.Equal(t, 2, c.pubSubMode)
}

func TestArmPubSubModeIdempotentOnceSet(t *testing.T) {
	c := newTestClient()
	c.pubSubMode = 5
	c.armPubSubMode()
	assert.Equal(t, 5, c.pubSubMode)
}

func TestHandleSubAckSingleChannelCompletesImmediately(t *testing.T) {
	c := newTestClient()
	done := false
	cmd := newCommand("subscribe", []Arg{StringArg("ch")}, func(error, interface{}) { done = true }, false)
	c.inFlightQueue.PushBack(cmd)

	reply := arrayReply(bulkReply("subscribe"), bulkReply("ch"), intReply(1))
	c.handleSubAck("subscribe", reply)

	assert.True(t, done)
	assert.Equal(t, 0, c.inFlightQueue.Len())
	assert.Contains(t, c.subs, subKey{"subscribe", "ch"})
}

// TestHandleSubAckTwoChannelCompletesOnFirstAck mirrors the
// sub_commands_left formula literally, including the early-completion
// quirk it produces for an exactly-two-channel SUBSCRIBE: subCommandsLeft
// is seeded to len(args)-1 = 1 on the first ack, and the completion check
// (subCommandsLeft == 1) fires that same ack rather than waiting for the
// second channel's acknowledgement.
func TestHandleSubAckTwoChannelCompletesOnFirstAck(t *testing.T) {
	c := newTestClient()
	completions := 0
	cmd := newCommand("subscribe", []Arg{StringArg("a"), StringArg("b")}, func(error, interface{}) { completions++ }, false)
	c.inFlightQueue.PushBack(cmd)

	c.handleSubAck("subscribe", arrayReply(bulkReply("subscribe"), bulkReply("a"), intReply(1)))
	assert.Equal(t, 1, completions)
	assert.Equal(t, 0, c.inFlightQueue.Len())
}

func TestHandleSubAckThreeChannelWaitsForSecondAck(t *testing.T) {
	c := newTestClient()
	completions := 0
	cmd := newCommand("subscribe", []Arg{StringArg("a"), StringArg("b"), StringArg("c")}, func(error, interface{}) { completions++ }, false)
	c.inFlightQueue.PushBack(cmd)

	c.handleSubAck("subscribe", arrayReply(bulkReply("subscribe"), bulkReply("a"), intReply(1)))
	assert.Equal(t, 0, completions, "subCommandsLeft seeded to 2, first ack decrements to 1 without completing")
	require.Equal(t, 1, c.inFlightQueue.Len())

	c.handleSubAck("subscribe", arrayReply(bulkReply("subscribe"), bulkReply("b"), intReply(2)))
	assert.Equal(t, 1, completions)
	assert.Equal(t, 0, c.inFlightQueue.Len())
}

func TestHandleUnsubscribeAllClearsPubSubModeWhenCountZero(t *testing.T) {
	c := newTestClient()
	c.subs.add("subscribe", "ch")
	c.pubSubMode = 1
	cmd := newCommand("unsubscribe", nil, func(error, interface{}) {}, false)
	c.inFlightQueue.PushBack(cmd)

	c.handleSubAck("unsubscribe", arrayReply(bulkReply("unsubscribe"), bulkReply("ch"), intReply(0)))
	assert.Equal(t, 0, c.pubSubMode)
	assert.NotContains(t, c.subs, subKey{"subscribe", "ch"})
}

func TestRoutePubSubReplyDispatchesMessage(t *testing.T) {
	c := newTestClient()
	var gotChannel string
	var gotPayload []byte
	c.hooks.OnMessage = func(channel string, payload []byte) { gotChannel, gotPayload = channel, payload }
	go c.runEventLoop()
	defer close(c.eventStop)

	c.pubSubMode = 1
	handled := c.routePubSubReply(arrayReply(bulkReply("message"), bulkReply("ch"), bulkReply("hi")))
	assert.True(t, handled)

	// Drain the event loop synchronously via a marker.
	waitForEvent(c)
	assert.Equal(t, "ch", gotChannel)
	assert.Equal(t, "hi", string(gotPayload))
}

func TestRoutePubSubReplyCountdownFallsThrough(t *testing.T) {
	c := newTestClient()
	c.pubSubMode = 3 // pending entry, two commands still ahead of the subscribe ack
	handled := c.routePubSubReply(resp.Reply{Type: resp.Simple, Str: "PONG"})
	assert.False(t, handled)
	assert.Equal(t, 2, c.pubSubMode)
}

func waitForEvent(c *Client) {
	done := make(chan struct{})
	c.emit(func() { close(done) })
	<-done
}
