package redis

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"
)

// ArgKind distinguishes a text argument from an opaque binary buffer.
type ArgKind byte

const (
	ArgText ArgKind = iota
	ArgBinary
)

// Arg is one normalized command argument: either a text string or an
// opaque byte buffer.
type Arg struct {
	Kind ArgKind
	Text string
	Bin  []byte
}

// Len reports the UTF-8 byte length used for the RESP bulk header — text
// arguments use byte length, not rune count.
func (a Arg) Len() int {
	if a.Kind == ArgBinary {
		return len(a.Bin)
	}
	return len(a.Text)
}

// binaryPromoteThreshold is the text/binary boundary: a text argument of
// length exactly 30,000 is sent as text; 30,001 is promoted to binary.
const binaryPromoteThreshold = 30000

// Sink is a single-shot completion callback for a command: called exactly
// once with (nil, value) on success or (err, nil) on failure. Future
// wraps a Sink to produce a blocking-wait alternative.
type Sink func(err error, value interface{})

// The value passed to a Sink is a plain Go value, never a resp.Reply:
// nil, string, []byte, int64, []interface{}, or map[string]string for
// HGETALL (see dispatcher.go's handleReply and replyToValue), so callers
// constructing a Sink don't need to import internal/resp.

// originCounter gives every command a lightweight, process-lifetime
// sequence number for diagnostics.
var originCounter uint64

// Command is the inert value record — name, argument list, completion
// sink, side-effect hook. It is created by SendCommand (bufferArgs and
// bigData are set there), mutated afterwards only by the pipeline
// (callOnWrite wiring, subscribe acknowledgement bookkeeping, completion),
// and destroyed once its sink fires.
type Command struct {
	Name string
	Args []Arg

	sink       Sink
	callOnWrite func()

	bufferArgs bool
	bigData    bool

	// Origin is a lightweight call-site tag, not a full stack capture;
	// appended to AbortError messages and recorded on ReplyError.Origin.
	Origin string

	seq uint64

	// subCommandsLeft tracks remaining subscribe-family acknowledgements
	// still owed for this command.
	subCommandsLeft int

	done bool
}

func newCommand(name string, args []Arg, sink Sink, captureOrigin bool) *Command {
	cmd := &Command{
		Name: name,
		Args: args,
		sink: sink,
		seq:  atomic.AddUint64(&originCounter, 1),
	}
	for _, a := range args {
		if a.Kind == ArgBinary {
			cmd.bufferArgs = true
			cmd.bigData = true
		}
	}
	if captureOrigin {
		cmd.Origin = fmt.Sprintf("    at send_command #%d (%s)", cmd.seq, time.Now().Format(time.RFC3339Nano))
	}
	return cmd
}

// complete invokes the sink exactly once; subsequent calls are no-ops.
func (c *Command) complete(err error, value interface{}) {
	if c.done {
		return
	}
	c.done = true
	if c.sink != nil {
		c.sink(err, value)
	}
}

// StringArg builds a text argument, auto-promoting to binary past
// binaryPromoteThreshold.
func StringArg(s string) Arg {
	if len(s) > binaryPromoteThreshold {
		return Arg{Kind: ArgBinary, Bin: []byte(s)}
	}
	return Arg{Kind: ArgText, Text: s}
}

// BytesArg builds a binary argument, always kept as-is (sets buffer_args
// and big_data on the owning Command).
func BytesArg(b []byte) Arg {
	return Arg{Kind: ArgBinary, Bin: b}
}

// IntArg formats an integer argument to its decimal text form.
func IntArg(n int64) Arg {
	return Arg{Kind: ArgText, Text: strconv.FormatInt(n, 10)}
}

// FloatArg formats a float argument to its default text form.
func FloatArg(f float64) Arg {
	return Arg{Kind: ArgText, Text: strconv.FormatFloat(f, 'g', -1, 64)}
}

// TimeArg formats a date-like value to its default text form (RFC3339).
func TimeArg(t time.Time) Arg {
	return Arg{Kind: ArgText, Text: t.Format(time.RFC3339Nano)}
}
