package redis

// Flat command wrappers over SendCommandFuture. There's no code-gen step
// here, so these are hand-written, but kept in the shape a generator
// would produce: one thin method per command, no extra logic beyond
// argument framing.

// Get issues GET key.
func (c *Client) Get(key string) *Future {
	return c.SendCommandFuture("get", []Arg{StringArg(key)})
}

// Set issues SET key value.
func (c *Client) Set(key string, value Arg) *Future {
	return c.SendCommandFuture("set", []Arg{StringArg(key), value})
}

// SetEx issues SET key value EX seconds.
func (c *Client) SetEx(key string, value Arg, seconds int64) *Future {
	return c.SendCommandFuture("set", []Arg{StringArg(key), value, StringArg("EX"), IntArg(seconds)})
}

// Del issues DEL key [key ...].
func (c *Client) Del(keys ...string) *Future {
	args := make([]Arg, len(keys))
	for i, k := range keys {
		args[i] = StringArg(k)
	}
	return c.SendCommandFuture("del", args)
}

// Exists issues EXISTS key [key ...].
func (c *Client) Exists(keys ...string) *Future {
	args := make([]Arg, len(keys))
	for i, k := range keys {
		args[i] = StringArg(k)
	}
	return c.SendCommandFuture("exists", args)
}

// Expire issues EXPIRE key seconds.
func (c *Client) Expire(key string, seconds int64) *Future {
	return c.SendCommandFuture("expire", []Arg{StringArg(key), IntArg(seconds)})
}

// Incr issues INCR key.
func (c *Client) Incr(key string) *Future {
	return c.SendCommandFuture("incr", []Arg{StringArg(key)})
}

// IncrBy issues INCRBY key increment.
func (c *Client) IncrBy(key string, increment int64) *Future {
	return c.SendCommandFuture("incrby", []Arg{StringArg(key), IntArg(increment)})
}

// HSet issues HSET key field value.
func (c *Client) HSet(key, field string, value Arg) *Future {
	return c.SendCommandFuture("hset", []Arg{StringArg(key), StringArg(field), value})
}

// HGet issues HGET key field.
func (c *Client) HGet(key, field string) *Future {
	return c.SendCommandFuture("hget", []Arg{StringArg(key), StringArg(field)})
}

// HGetAll issues HGETALL key. handleReply (dispatcher.go) folds its flat
// array reply into a map[string]string.
func (c *Client) HGetAll(key string) *Future {
	return c.SendCommandFuture("hgetall", []Arg{StringArg(key)})
}

// LPush issues LPUSH key value [value ...].
func (c *Client) LPush(key string, values ...Arg) *Future {
	args := append([]Arg{StringArg(key)}, values...)
	return c.SendCommandFuture("lpush", args)
}

// RPush issues RPUSH key value [value ...].
func (c *Client) RPush(key string, values ...Arg) *Future {
	args := append([]Arg{StringArg(key)}, values...)
	return c.SendCommandFuture("rpush", args)
}

// LRange issues LRANGE key start stop.
func (c *Client) LRange(key string, start, stop int64) *Future {
	return c.SendCommandFuture("lrange", []Arg{StringArg(key), IntArg(start), IntArg(stop)})
}

// Publish issues PUBLISH channel message.
func (c *Client) Publish(channel string, message Arg) *Future {
	return c.SendCommandFuture("publish", []Arg{StringArg(channel), message})
}

// Subscribe issues SUBSCRIBE channel [channel ...] with a callback sink
// instead of a Future, since a subscribe command's reply arrives as one
// acknowledgement per channel rather than a single value.
func (c *Client) Subscribe(sink Sink, channels ...string) bool {
	args := make([]Arg, len(channels))
	for i, ch := range channels {
		args[i] = StringArg(ch)
	}
	return c.SendCommand("subscribe", args, sink)
}

// Unsubscribe issues UNSUBSCRIBE [channel ...]. With no channels, the
// server unsubscribes from all channels the connection currently holds.
func (c *Client) Unsubscribe(sink Sink, channels ...string) bool {
	args := make([]Arg, len(channels))
	for i, ch := range channels {
		args[i] = StringArg(ch)
	}
	return c.SendCommand("unsubscribe", args, sink)
}

// PSubscribe issues PSUBSCRIBE pattern [pattern ...].
func (c *Client) PSubscribe(sink Sink, patterns ...string) bool {
	args := make([]Arg, len(patterns))
	for i, p := range patterns {
		args[i] = StringArg(p)
	}
	return c.SendCommand("psubscribe", args, sink)
}

// PUnsubscribe issues PUNSUBSCRIBE [pattern ...].
func (c *Client) PUnsubscribe(sink Sink, patterns ...string) bool {
	args := make([]Arg, len(patterns))
	for i, p := range patterns {
		args[i] = StringArg(p)
	}
	return c.SendCommand("punsubscribe", args, sink)
}

// Ping issues PING, optionally with a payload the server echoes back.
func (c *Client) Ping(message string) *Future {
	if message == "" {
		return c.SendCommandFuture("ping", nil)
	}
	return c.SendCommandFuture("ping", []Arg{StringArg(message)})
}

// Monitor issues MONITOR; subsequent lines arrive through Hooks.OnMonitor
// until End/Quit.
func (c *Client) Monitor() *Future {
	f := c.SendCommandFuture("monitor", nil)
	c.mu.Lock()
	c.monitoring = true
	c.mu.Unlock()
	return f
}

// ClientReply issues CLIENT REPLY ON|OFF|SKIP, whose callOnWrite hook
// (writer.go's setupCallOnWrite) flips replyMode at write-commit time.
func (c *Client) ClientReply(mode string) bool {
	return c.SendCommand("client", []Arg{StringArg("reply"), StringArg(mode)}, nil)
}
