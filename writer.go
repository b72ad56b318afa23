package redis

import (
	"strings"

	"github.com/xenking/nredis/internal/resp"
	"github.com/xenking/nredis/internal/transport"
)

// maxStringChunk caps a single concatenated string-path write, splitting
// at a 4 MiB boundary to avoid allocating pathological strings.
const maxStringChunk = 4 << 20

// dispatchSend is the top-level routing rule: if state != ready, route
// to the offline handler. Otherwise serialize and hand to the writer,
// then enqueue in inFlightQueue unless reply-mode suppression applies.
func (c *Client) dispatchSend(cmd *Command) bool {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state != stateReady {
		return c.offlineSend(cmd)
	}
	return c.writeDirect(cmd)
}

// offlineSend either completes the command with one of three
// AbortError messages, or parks it in offlineQueue when neither
// disqualifying condition holds.
func (c *Client) offlineSend(cmd *Command) bool {
	c.mu.Lock()
	state := c.state
	offlineDisabled := c.opts.DisableOfflineQueue
	writable := c.conn != nil
	c.mu.Unlock()

	switch {
	case state == stateClosing || state == stateEnded:
		cmd.complete(newAbortError(CodeClosed, "Connection already closed.", cmd, nil), nil)
		return false

	case offlineDisabled && !writable:
		cmd.complete(newAbortError(CodeClosed, "Stream not writable.", cmd, nil), nil)
		return false

	case offlineDisabled:
		cmd.complete(newAbortError(CodeClosed, "The offline queue is deactivated, and the connection is not ready.", cmd, nil), nil)
		return false
	}

	c.mu.Lock()
	c.offlineQueue.PushBack(cmd)
	c.shouldBuffer = true
	c.mu.Unlock()
	return false
}

// drainOfflineQueue runs on transition to ready: repeatedly shift the
// head of offlineQueue and re-enter dispatchSend for each item, then
// emit drain.
func (c *Client) drainOfflineQueue() {
	for {
		c.mu.Lock()
		cmd := c.offlineQueue.ShiftFront()
		c.mu.Unlock()
		if cmd == nil {
			break
		}
		c.dispatchSend(cmd)
	}
	c.emitDrain()
}

// writeDirect performs the unconditional serialize-and-write half of
// command dispatch, used both for ready-state user commands and for the
// controller's own bootstrapping traffic (AUTH, SELECT, the INFO ready
// check, and resubscribe) which must write while the state is still
// connected_not_ready.
func (c *Client) writeDirect(cmd *Command) bool {
	c.setupCallOnWrite(cmd)

	wire := cmd
	if positions := c.opts.KeyPositions[strings.ToLower(cmd.Name)]; c.opts.Prefix != "" && len(positions) > 0 {
		args := append([]Arg(nil), cmd.Args...)
		for _, p := range positions {
			if p < 0 || p >= len(args) {
				continue
			}
			if args[p].Kind == ArgBinary {
				args[p].Bin = append([]byte(c.opts.Prefix), args[p].Bin...)
			} else {
				args[p].Text = c.opts.Prefix + args[p].Text
			}
		}
		wire = &Command{Name: cmd.Name, Args: args}
	}
	frags, hasBinary := serializeCommand(wire)

	if cmd.callOnWrite != nil {
		cmd.callOnWrite()
	}

	writable := c.writeFragments(frags, hasBinary)

	c.mu.Lock()
	mode := c.replyMode
	c.mu.Unlock()

	switch mode {
	case ReplyOn:
		c.mu.Lock()
		c.inFlightQueue.PushBack(cmd)
		c.mu.Unlock()

	case ReplyOff:
		cmd.complete(nil, nil)

	case ReplySkip:
		cmd.complete(nil, nil)
		c.mu.Lock()
		c.replyMode = ReplySkipOneMore
		c.mu.Unlock()

	case ReplySkipOneMore:
		cmd.complete(nil, nil)
		c.mu.Lock()
		c.replyMode = ReplyOn
		c.mu.Unlock()
	}

	return writable
}

// setupCallOnWrite wires the two write-time hooks: pub/sub mode arming
// and CLIENT REPLY mode flipping. Both fire synchronously between the
// moment we commit to sending this command and the bytes hitting the wire.
func (c *Client) setupCallOnWrite(cmd *Command) {
	lname := strings.ToLower(cmd.Name)

	if isSubscribeFamily(lname) {
		cmd.callOnWrite = c.armPubSubMode
		return
	}

	if lname == "client" && len(cmd.Args) >= 2 && strings.EqualFold(cmd.Args[0].asText(), "reply") {
		mode := strings.ToUpper(cmd.Args[1].asText())
		cmd.callOnWrite = func() { c.applyReplyModeChange(mode) }
	}
}

// applyReplyModeChange flips replyMode per CLIENT REPLY's argument; once
// pub/sub mode is non-zero, CLIENT REPLY mutations are silently ignored.
func (c *Client) applyReplyModeChange(mode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pubSubMode != 0 {
		return
	}
	switch mode {
	case "OFF":
		c.replyMode = ReplyOff
	case "SKIP":
		c.replyMode = ReplySkip
	case "ON":
		c.replyMode = ReplyOn
	}
}

// asText reads an Arg's payload as text regardless of kind, used for the
// handful of control commands (CLIENT REPLY, CLIENT REPLY's mode token)
// whose arguments are always short plain tokens.
func (a Arg) asText() string {
	if a.Kind == ArgBinary {
		return string(a.Bin)
	}
	return a.Text
}

// serializeCommand builds the RESP multi-bulk wire fragments for cmd:
// text arguments are concatenated into a shared buffer; a binary
// argument flushes that buffer, then contributes its own three writes
// (header, payload, CRLF) to avoid copies.
func serializeCommand(cmd *Command) ([][]byte, bool) {
	hasBinary := false
	var frags [][]byte
	var textBuf []byte

	textBuf = resp.AppendArrayHeader(textBuf, len(cmd.Args)+1)
	textBuf = resp.AppendBulkString(textBuf, cmd.Name)

	for _, a := range cmd.Args {
		if a.Kind == ArgBinary {
			hasBinary = true
			if len(textBuf) > 0 {
				frags = append(frags, textBuf)
				textBuf = nil
			}
			frags = append(frags, resp.AppendBulkHeader(nil, len(a.Bin)), a.Bin, resp.AppendCRLF(nil))
			continue
		}
		textBuf = resp.AppendBulkString(textBuf, a.Text)
	}

	if len(textBuf) > 0 {
		frags = append(frags, textBuf)
	}
	return frags, hasBinary
}

// writeFragments splits on cork state: corked fragments accumulate into
// the pipeline batch (tracking fireStrings); uncorked fragments go
// straight to the transport, updating shouldBuffer from its backpressure
// hint.
func (c *Client) writeFragments(frags [][]byte, hasBinary bool) bool {
	c.mu.Lock()
	if c.corked {
		c.batch = append(c.batch, frags...)
		if hasBinary {
			c.fireStrings = false
		}
		writable := !c.shouldBuffer
		c.mu.Unlock()
		return writable
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return false
	}

	writable := true
	for _, f := range frags {
		if !conn.Write(f) {
			writable = false
		}
	}
	if !writable {
		c.mu.Lock()
		c.shouldBuffer = true
		c.mu.Unlock()
	}
	return writable
}

// Cork begins accumulating writes into the pipeline batch instead of
// sending them immediately.
func (c *Client) Cork() {
	c.mu.Lock()
	if !c.corked {
		c.fireStrings = true
	}
	c.corked = true
	c.mu.Unlock()
}

// Uncork flushes the pipeline batch accumulated since Cork, choosing the
// strings fast path when every fragment is text, or the buffers path
// (each fragment written verbatim) when any command in the batch had a
// binary argument.
func (c *Client) Uncork() {
	c.mu.Lock()
	if !c.corked {
		c.mu.Unlock()
		return
	}
	c.corked = false
	batch := c.batch
	fireStrings := c.fireStrings
	c.batch = nil
	c.fireStrings = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || len(batch) == 0 {
		return
	}

	var writable bool
	if fireStrings {
		writable = flushStrings(conn, batch)
	} else {
		writable = true
		for _, f := range batch {
			if !conn.Write(f) {
				writable = false
			}
		}
	}

	if !writable {
		c.mu.Lock()
		c.shouldBuffer = true
		c.mu.Unlock()
	}
}

// flushStrings implements the strings fast path: concatenate fragments,
// splitting at maxStringChunk.
func flushStrings(conn *transport.Conn, batch [][]byte) bool {
	var buf []byte
	writable := true

	flush := func() {
		if len(buf) == 0 {
			return
		}
		if !conn.Write(buf) {
			writable = false
		}
		buf = nil
	}

	for _, f := range batch {
		if len(buf) > 0 && len(buf)+len(f) > maxStringChunk {
			flush()
		}
		buf = append(buf, f...)
	}
	flush()
	return writable
}
