package redis

import (
	"strconv"
	"strings"

	"github.com/xenking/nredis/internal/resp"
)

// dispatchReply is the three-way branch between monitor lines, the
// pub/sub overlay, and normal command completion, run on each reply the
// parser hands back.
func (c *Client) dispatchReply(reply resp.Reply) {
	c.mu.Lock()
	monitoring := c.monitoring
	c.mu.Unlock()

	if monitoring {
		if ts, args, raw, ok := parseMonitorLine(reply); ok {
			c.emitMonitor(ts, args, raw)
			return
		}
	}

	// Error replies skip the pub/sub overlay: dispatchError applies the
	// entry countdown itself, so routing them through routePubSubReply too
	// would count one reply twice.
	if reply.Type == resp.Err {
		c.dispatchError(resp.ServerError(reply.Str))
		return
	}

	c.mu.Lock()
	pubSubMode := c.pubSubMode
	c.mu.Unlock()

	if pubSubMode != 0 {
		if c.routePubSubReply(reply) {
			return
		}
	}
	c.dispatchNormal(reply)
}

// dispatchNormal shifts the head of inFlightQueue and completes it,
// applying handleReply's post-processing first.
func (c *Client) dispatchNormal(reply resp.Reply) {
	cmd := c.shiftInFlight()
	if cmd == nil {
		// Unsolicited reply with nothing awaiting it; nothing to route
		// it to but a warning, since this should never happen outside
		// of a protocol bug or a mismatched pub/sub frame.
		c.emitWarning("redis: received reply with no command awaiting it")
		return
	}
	value := c.handleReply(cmd, reply)
	cmd.complete(nil, value)
}

// handleReply applies per-command reply post-processing: HGETALL's
// flat-array-to-map conversion, and (when DetectBuffers is enabled and
// the command sent no binary arguments) leaving bulk strings as Go
// strings rather than []byte.
func (c *Client) handleReply(cmd *Command, reply resp.Reply) interface{} {
	if strings.EqualFold(cmd.Name, "hgetall") {
		if m, ok := reply.Map(); ok {
			return m
		}
	}
	return replyToValue(reply, c.opts.DetectBuffers && !cmd.bufferArgs, c.opts.ReturnBuffers && !cmd.bufferArgs)
}

// replyToValue converts a parsed reply into the plain Go value handed to
// a Sink: nil for a null bulk/array, a string or []byte for a bulk
// ([]byte only when preferBytes is set and preferText is not), int64 for
// an integer, a []interface{} for an
// array (recursing), and a string for a simple status reply.
func replyToValue(reply resp.Reply, preferText, preferBytes bool) interface{} {
	switch reply.Type {
	case resp.Simple:
		return reply.Str
	case resp.Integer:
		return reply.Integer
	case resp.Bulk:
		if reply.Null {
			return nil
		}
		if preferBytes && !preferText {
			return reply.Bulk
		}
		return string(reply.Bulk)
	case resp.Array:
		if reply.Null {
			return nil
		}
		out := make([]interface{}, len(reply.Array))
		for i, e := range reply.Array {
			out[i] = replyToValue(e, preferText, preferBytes)
		}
		return out
	default:
		return nil
	}
}

// dispatchError is the reply-error branch: shift head, attach
// origin/command/args and the extracted error code, honor the pub/sub
// entry countdown, and route to the sink or the error event.
func (c *Client) dispatchError(serr resp.ServerError) {
	c.mu.Lock()
	if c.pubSubMode > 1 {
		c.pubSubMode--
	}
	c.mu.Unlock()

	cmd := c.shiftInFlight()
	replyErr := newReplyError(string(serr), cmd)

	if cmd == nil || cmd.sink == nil {
		c.emitError(replyErr)
		return
	}
	cmd.complete(replyErr, nil)
}

func (c *Client) shiftInFlight() *Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlightQueue.ShiftFront()
}

// parseMonitorLine recognizes the MONITOR push format:
// "<unix-ts>.<micros> [<db> <addr>] \"cmd\" \"arg1\" \"arg2\" ...".
// Only a simple-string reply can be a monitor line; anything else is left
// for the normal dispatcher.
func parseMonitorLine(reply resp.Reply) (ts float64, args []string, raw string, ok bool) {
	if reply.Type != resp.Simple {
		return 0, nil, "", false
	}
	raw = reply.Str
	sp := strings.IndexByte(raw, ' ')
	if sp <= 0 {
		return 0, nil, "", false
	}
	t, err := strconv.ParseFloat(raw[:sp], 64)
	if err != nil {
		return 0, nil, "", false
	}
	rest := raw[sp+1:]
	bracket := strings.IndexByte(rest, ']')
	if len(rest) == 0 || rest[0] != '[' || bracket < 0 {
		return 0, nil, "", false
	}
	rest = strings.TrimSpace(rest[bracket+1:])
	args = splitQuotedArgs(rest)
	return t, args, raw, true
}

func splitQuotedArgs(s string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '"' && !inQuote:
			inQuote = true
		case ch == '"' && inQuote:
			inQuote = false
			out = append(out, cur.String())
			cur.Reset()
		case ch == '\\' && inQuote && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case inQuote:
			cur.WriteByte(ch)
		}
	}
	return out
}

func (c *Client) emitMonitor(ts float64, args []string, raw string) {
	if h := c.hooks.OnMonitor; h != nil {
		c.emit(func() { h(ts, args, raw) })
	}
}
