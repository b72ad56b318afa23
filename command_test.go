package redis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArgPromotesPastThreshold(t *testing.T) {
	short := StringArg(strings.Repeat("x", binaryPromoteThreshold))
	assert.Equal(t, ArgText, short.Kind)

	long := StringArg(strings.Repeat("x", binaryPromoteThreshold+1))
	assert.Equal(t, ArgBinary, long.Kind)
	assert.Equal(t, binaryPromoteThreshold+1, long.Len())
}

func TestBytesArgAlwaysBinary(t *testing.T) {
	a := BytesArg([]byte("x"))
	assert.Equal(t, ArgBinary, a.Kind)
}

func TestNewCommandSetsBufferArgsOnBinary(t *testing.T) {
	cmd := newCommand("set", []Arg{StringArg("k"), BytesArg([]byte{0, 1, 2})}, nil, false)
	assert.True(t, cmd.bufferArgs)
	assert.True(t, cmd.bigData)
}

func TestNewCommandNoBufferArgsOnTextOnly(t *testing.T) {
	cmd := newCommand("get", []Arg{StringArg("k")}, nil, false)
	assert.False(t, cmd.bufferArgs)
}

func TestCommandCompleteOnlyFiresOnce(t *testing.T) {
	calls := 0
	cmd := newCommand("get", nil, func(error, interface{}) { calls++ }, false)
	cmd.complete(nil, "ok")
	cmd.complete(nil, "ok-again")
	assert.Equal(t, 1, calls)
}

func TestNewCommandCapturesOrigin(t *testing.T) {
	cmd := newCommand("get", nil, nil, true)
	assert.NotEmpty(t, cmd.Origin)
}

func TestSerializeCommandTextOnly(t *testing.T) {
	cmd := newCommand("set", []Arg{StringArg("key"), StringArg("value")}, nil, false)
	frags, hasBinary := serializeCommand(cmd)
	require.False(t, hasBinary)
	require.Len(t, frags, 1)
	assert.Equal(t, "*3\r\n$3\r\nset\r\n$3\r\nkey\r\n$5\r\nvalue\r\n", string(frags[0]))
}

func TestSerializeCommandWithBinaryArg(t *testing.T) {
	cmd := newCommand("set", []Arg{StringArg("key"), BytesArg([]byte{0xff, 0x00})}, nil, false)
	frags, hasBinary := serializeCommand(cmd)
	require.True(t, hasBinary)
	// header+key text fragment, then header/payload/CRLF for the binary arg.
	require.Len(t, frags, 4)
	assert.Equal(t, "*3\r\n$3\r\nset\r\n$3\r\nkey\r\n", string(frags[0]))
	assert.Equal(t, "$2\r\n", string(frags[1]))
	assert.Equal(t, []byte{0xff, 0x00}, frags[2])
	assert.Equal(t, "\r\n", string(frags[3]))
}
