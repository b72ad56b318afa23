package redis

import (
	"crypto/tls"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// ReplyMode mirrors CLIENT REPLY's ON/OFF/SKIP state, plus the internal
// SkipOneMore step that follows SKIP, kept as a small named type over a
// plain byte rather than a heavier enum.
type ReplyMode byte

const (
	ReplyOn ReplyMode = iota
	ReplyOff
	ReplySkip
	ReplySkipOneMore
)

// RetryStrategy computes the next reconnect delay given the current retry
// state. Returning a negative duration tells the controller to stop
// retrying and flush both queues with CodeClosed.
type RetryStrategy func(attempt int, lastErr error, totalRetryTime, connectTimeout time.Duration, timesConnected int) time.Duration

// CommandKeyPositions maps a lowercase command name to the 0-based
// argument positions that are keys, used for the optional Prefix option:
// key arguments get prefixed before serialization.
type CommandKeyPositions map[string][]int

// Options configures a Client.
type Options struct {
	Host string // default "127.0.0.1"
	Port int    // default 6379
	Path string // UNIX socket; mutually exclusive with Host/Port

	TLSConfig *tls.Config // opaque passthrough; the client still dials Host/Port (or Path) and wraps that connection in TLS

	ConnectTimeout time.Duration // default 3,600,000ms
	CommandTimeout time.Duration

	DisableOfflineQueue     bool // default false: offline queueing is on
	RetryStrategy           RetryStrategy
	RetryUnfulfilledCommands bool // default false
	RetryBackoff            float64       // default 1.7
	RetryMaxDelay           time.Duration // 0 = uncapped
	MaxAttempts             int           // 0 = unbounded

	NoReadyCheck         bool // default false
	DisableResubscribing bool // default false

	ReturnBuffers  bool // default false
	DetectBuffers  bool // default false
	StringNumbers  bool // default false

	Password string
	DB       int
	Prefix   string
	KeyPositions   CommandKeyPositions
	RenameCommands map[string]string

	// Logger receives structured diagnostics: the controller logs each
	// successful connect at debug level. Retry scheduling and ready-check
	// outcomes are not logged. Nil defaults to a disabled logger
	// (zerolog.Nop()).
	Logger *zerolog.Logger

	// Debug enables AggregateError emission from the error flusher;
	// off by default to match typical production posture.
	Debug bool
}

func (o *Options) setDefaults() {
	if o.Host == "" && o.Path == "" {
		o.Host = "127.0.0.1"
	}
	if o.Port == 0 {
		o.Port = 6379
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 3600 * time.Second
	}
	if o.RetryBackoff == 0 {
		o.RetryBackoff = 1.7
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
}

// addr computes the normalized dial address (not the network), reusing
// normalizeAddr/isUnixAddr from redis.go.
func (o *Options) addr() string {
	if o.Path != "" {
		return o.Path
	}
	return normalizeAddr(hostPort(o.Host, o.Port))
}

func hostPort(host string, port int) string {
	if host == "" {
		host = "127.0.0.1"
	}
	return host + ":" + strconv.Itoa(port)
}
