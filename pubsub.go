package redis

import (
	"strings"
	"sync"

	"github.com/xenking/nredis/internal/resp"
)

// subKey identifies one subscription-set entry: kind is always
// "subscribe" or "psubscribe" — the set never stores the unsubscribe-
// family kinds directly.
type subKey struct {
	kind    string
	channel string
}

// subscriptionSet is the canonical record of active channels/patterns,
// surviving reconnects so the controller can re-issue each entry once
// the new connection reaches the ready check.
type subscriptionSet map[subKey]string

func newSubscriptionSet() subscriptionSet { return make(subscriptionSet) }

func (s subscriptionSet) add(kind, channel string) { s[subKey{kind, channel}] = channel }

func (s subscriptionSet) remove(kind, channel string) { delete(s, subKey{kind, channel}) }

func (s subscriptionSet) empty() bool { return len(s) == 0 }

func isSubscribeFamily(name string) bool {
	switch strings.ToLower(name) {
	case "subscribe", "psubscribe", "unsubscribe", "punsubscribe":
		return true
	}
	return false
}

// pairedKind maps an unsubscribe-family command name to the subscribe-
// family kind whose entries it removes.
func pairedKind(kind string) string {
	switch strings.ToLower(kind) {
	case "unsubscribe":
		return "subscribe"
	case "punsubscribe":
		return "psubscribe"
	}
	return strings.ToLower(kind)
}

// armPubSubMode implements the entry rule: on issuing a subscribe-family
// command while not yet in pub/sub mode, set pubSubMode = inFlightQueue
// length + 1. It runs as the command's callOnWrite hook, so it fires at
// the same instant the CLIENT REPLY hook does — after the bytes are
// committed, before the next command serializes. The in-flight queue
// length is read at write time rather than at enqueue time, which can
// undercount against a command that lands a moment later; this mirrors
// upstream's own race rather than inventing stronger synchronization.
func (c *Client) armPubSubMode() {
	c.mu.Lock()
	if c.pubSubMode == 0 {
		c.pubSubMode = c.inFlightQueue.Len() + 1
	}
	c.mu.Unlock()
}

// routePubSubReply decides whether reply belongs to the pub/sub overlay.
// It returns true when it fully handled reply (a pub/sub frame or
// acknowledgement); false means the caller should fall through to the
// normal dispatcher (handles PING/QUIT replies arriving while pubSubMode
// is pending entry or the countdown is still non-1).
func (c *Client) routePubSubReply(reply resp.Reply) bool {
	c.mu.Lock()
	mode := c.pubSubMode
	if mode > 1 {
		c.pubSubMode--
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	if reply.Type != resp.Array || reply.Null || len(reply.Array) <= 2 {
		return false
	}

	kind, _ := reply.Array[0].Text()
	switch strings.ToLower(kind) {
	case "message":
		channel, _ := reply.Array[1].Text()
		payload, _ := reply.Array[2].Text()
		c.emitMessage(channel, []byte(payload))
		return true

	case "pmessage":
		if len(reply.Array) < 4 {
			return false
		}
		pattern, _ := reply.Array[1].Text()
		channel, _ := reply.Array[2].Text()
		payload, _ := reply.Array[3].Text()
		c.emitPMessage(pattern, channel, []byte(payload))
		return true

	case "subscribe", "psubscribe", "unsubscribe", "punsubscribe":
		c.handleSubAck(kind, reply)
		return true

	default:
		return false
	}
}

// handleSubAck implements subscribe-family acknowledgement in full,
// including the subCommandsLeft initialization formula — preserved as a
// literal mirror of upstream rather than "corrected," so a two-channel
// SUBSCRIBE completes on its first ack instead of its second. See
// TestHandleSubAckTwoChannelCompletesOnFirstAck.
func (c *Client) handleSubAck(kind string, reply resp.Reply) {
	channel, hasChannel := reply.Array[1].Text()
	count, _ := reply.Array[2].Int64()

	c.mu.Lock()
	cmd := c.inFlightQueue.Front()
	if cmd != nil && !cmd.done && cmd.subCommandsLeft == 0 {
		if len(cmd.Args) > 0 {
			cmd.subCommandsLeft = len(cmd.Args) - 1
		} else {
			cmd.subCommandsLeft = int(count)
		}
	}
	c.mu.Unlock()

	c.emitSubAck(kind, channel, count)

	c.mu.Lock()
	switch strings.ToLower(kind) {
	case "subscribe", "psubscribe":
		c.subs.add(strings.ToLower(kind), channel)
	case "unsubscribe", "punsubscribe":
		c.subs.remove(pairedKind(kind), channel)
	}
	c.mu.Unlock()

	complete := false
	if cmd != nil {
		switch {
		case len(cmd.Args) == 1:
			complete = true
		case cmd.subCommandsLeft == 1:
			complete = true
		case len(cmd.Args) == 0 && (count == 0 || !hasChannel):
			complete = true
		}
		if cmd.subCommandsLeft > 0 {
			cmd.subCommandsLeft--
		}
	}

	if complete && cmd != nil {
		c.mu.Lock()
		c.inFlightQueue.ShiftFront()
		c.mu.Unlock()
		cmd.complete(nil, channel)
	}

	lk := strings.ToLower(kind)
	if (lk == "unsubscribe" || lk == "punsubscribe") && count == 0 {
		c.mu.Lock()
		newMode := 0
		for i := 0; i < c.inFlightQueue.Len(); i++ {
			if next := c.inFlightQueue.At(i); next != nil && isSubscribeFamily(next.Name) {
				newMode = i + 1
				break
			}
		}
		c.pubSubMode = newMode
		c.mu.Unlock()
	}
}

// resubscribeOnReady runs on entering ready: if the subscription set is
// non-empty and DisableResubscribing is not set, it re-issues each entry
// before draining the offline queue. cb runs once every re-issued entry
// has been acknowledged (or immediately if there is nothing to
// resubscribe).
func (c *Client) resubscribeOnReady(cb func()) {
	c.mu.Lock()
	if c.opts.DisableResubscribing || c.subs.empty() {
		c.mu.Unlock()
		cb()
		return
	}
	entries := make([]subKey, 0, len(c.subs))
	for k := range c.subs {
		entries = append(entries, k)
	}
	c.mu.Unlock()

	var ackMu sync.Mutex
	done := 0

	onAck := func(error, interface{}) {
		ackMu.Lock()
		done++
		d := done
		ackMu.Unlock()
		if d == len(entries) {
			cb()
		}
	}

	for _, e := range entries {
		cmd := newCommand(e.kind, []Arg{StringArg(e.channel)}, onAck, false)
		c.writeDirect(cmd)
	}
}

func (c *Client) emitMessage(channel string, payload []byte) {
	if h := c.hooks.OnMessage; h != nil {
		c.emit(func() { h(channel, payload) })
	}
}

func (c *Client) emitPMessage(pattern, channel string, payload []byte) {
	if h := c.hooks.OnPMessage; h != nil {
		c.emit(func() { h(pattern, channel, payload) })
	}
}

func (c *Client) emitSubAck(kind, channel string, count int64) {
	switch strings.ToLower(kind) {
	case "subscribe":
		if h := c.hooks.OnSubscribe; h != nil {
			c.emit(func() { h(channel, count) })
		}
	case "unsubscribe":
		if h := c.hooks.OnUnsubscribe; h != nil {
			c.emit(func() { h(channel, count) })
		}
	case "psubscribe":
		if h := c.hooks.OnPSubscribe; h != nil {
			c.emit(func() { h(channel, count) })
		}
	case "punsubscribe":
		if h := c.hooks.OnPUnsubscribe; h != nil {
			c.emit(func() { h(channel, count) })
		}
	}
}
