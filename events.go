package redis

import "time"

// ReconnectEvent is the payload of the "reconnecting" event, carrying
// everything the retry arithmetic tracks.
type ReconnectEvent struct {
	Delay          time.Duration
	Attempt        int
	Error          error
	TotalRetryTime time.Duration
	TimesConnected int
}

// Hooks is the set of event callbacks a Client invokes. All fields are
// optional; nil hooks are simply not called. Hooks run on a dedicated
// goroutine (never on the goroutine holding the controller's lock), so
// registering a hook that calls back into the Client is safe, but the
// hook must not assume any particular relative ordering against
// concurrent SendCommand calls.
type Hooks struct {
	OnConnect      func()
	OnReady        func()
	OnReconnecting func(ReconnectEvent)
	OnError        func(error)
	OnEnd          func()
	OnDrain        func()
	OnWarning      func(message string)
	OnMonitor      func(timestamp float64, args []string, raw string)
	OnMessage      func(channel string, payload []byte)
	OnPMessage     func(pattern, channel string, payload []byte)
	OnSubscribe    func(channel string, count int64)
	OnUnsubscribe  func(channel string, count int64)
	OnPSubscribe   func(pattern string, count int64)
	OnPUnsubscribe func(pattern string, count int64)
}

// emit queues fn on the event goroutine, preserving the order events were
// raised in relative to each other (never relative to SendCommand calls
// racing in from other goroutines — no such ordering is promised).
func (c *Client) emit(fn func()) {
	select {
	case c.eventCh <- fn:
	case <-c.eventStop:
	}
}

func (c *Client) runEventLoop() {
	for {
		select {
		case fn := <-c.eventCh:
			fn()
		case <-c.eventStop:
			return
		}
	}
}

func (c *Client) emitConnect() {
	if h := c.hooks.OnConnect; h != nil {
		c.emit(h)
	}
}

func (c *Client) emitReady() {
	if h := c.hooks.OnReady; h != nil {
		c.emit(h)
	}
}

func (c *Client) emitReconnecting(ev ReconnectEvent) {
	if h := c.hooks.OnReconnecting; h != nil {
		c.emit(func() { h(ev) })
	}
}

func (c *Client) emitError(err error) {
	if h := c.hooks.OnError; h != nil {
		c.emit(func() { h(err) })
	}
}

func (c *Client) emitEnd() {
	if h := c.hooks.OnEnd; h != nil {
		c.emit(h)
	}
}

func (c *Client) emitDrain() {
	if h := c.hooks.OnDrain; h != nil {
		c.emit(h)
	}
}

func (c *Client) emitWarning(msg string) {
	if h := c.hooks.OnWarning; h != nil {
		c.emit(func() { h(msg) })
	}
}
