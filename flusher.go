package redis

// flushAttrs carries the common shape of an AbortError built for every
// command a flush abandons, varying only the per-command
// Command/Args/Origin fields.
type flushAttrs struct {
	code    string
	message string
	cause   error
}

// flushOptions selects which named queues flushAndError drains:
// onFatalParserError and connectionGone's uncertain-state path flush only
// in-flight; End(true) and connectionGone's terminal paths (closing,
// retry strategy abort, exhausted budget) flush both.
type flushOptions struct {
	inFlight bool
	offline  bool
}

// flushAndError drains the selected queues, completes every abandoned
// command with an AbortError (appending "It might have been processed."
// for in-flight commands, since those bytes may already have reached the
// server), and routes sink-less completions to the error event. Without
// Debug only the first sink-less error is emitted; with Debug, more than
// one are emitted together as a single AggregateError.
func (c *Client) flushAndError(attrs flushAttrs, opts flushOptions) {
	var abandoned []*Command

	c.mu.Lock()
	if opts.inFlight {
		abandoned = append(abandoned, c.inFlightQueue.DrainAll()...)
	}
	offlineStart := len(abandoned)
	if opts.offline {
		abandoned = append(abandoned, c.offlineQueue.DrainAll()...)
	}
	debug := c.opts.Debug
	c.mu.Unlock()

	var unsinked []error

	for i, cmd := range abandoned {
		message := attrs.message
		if i < offlineStart {
			message += " It might have been processed."
		}
		err := newAbortError(attrs.code, message, cmd, attrs.cause)

		if cmd.sink == nil {
			unsinked = append(unsinked, err)
			continue
		}
		cmd.complete(err, nil)
	}

	if len(unsinked) == 0 {
		return
	}
	if !debug {
		c.emitError(unsinked[0])
		return
	}
	if len(unsinked) == 1 {
		c.emitError(unsinked[0])
		return
	}
	c.emitError(&AggregateError{Errors: unsinked})
}
