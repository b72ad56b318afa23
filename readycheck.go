package redis

import (
	"strconv"
	"strings"
	"time"

	"github.com/xenking/nredis/internal/transport"
)

// readyCheckInterval paces INFO retries when the previous INFO call itself
// failed (a transient error, not a loading/replication signal).
const readyCheckInterval = 100 * time.Millisecond

// readyCheckLoadingMaxDelay caps the loading-eta-derived retry delay.
const readyCheckLoadingMaxDelay = time.Second

// readyCheckReplicaDelay paces retries while a replica's link to its
// master is still coming up.
const readyCheckReplicaDelay = 50 * time.Millisecond

// runReadyCheck issues INFO, parses the loading and master_link_status
// fields, and either enters ready or retries. A server old enough to
// reject INFO ("ERR unknown command") is treated as ready immediately.
func (c *Client) runReadyCheck() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	go c.readyCheckLoop(conn)
}

func (c *Client) readyCheckLoop(conn *transport.Conn) {
	for {
		c.mu.Lock()
		stillCurrent := c.conn == conn
		ended := c.state == stateEnded || c.state == stateClosing
		c.mu.Unlock()
		if !stillCurrent || ended {
			return
		}

		f := c.sendDirectFuture("info", nil)
		value, err := f.Result()
		if err != nil {
			if re, ok := err.(*ReplyError); ok && containsFold(re.Message, "unknown command") {
				c.enterReady()
				return
			}
			time.Sleep(readyCheckInterval)
			continue
		}

		text, _ := value.(string)
		info := parseInfo(text)

		c.mu.Lock()
		c.serverInfo = info
		c.mu.Unlock()

		if infoSaysReady(info) {
			c.enterReady()
			return
		}
		time.Sleep(nextReadyCheckDelay(info))
	}
}

func infoSaysReady(info map[string]string) bool {
	if info["loading"] == "1" {
		return false
	}
	if status, ok := info["master_link_status"]; ok && status != "up" {
		return false
	}
	return true
}

// nextReadyCheckDelay picks the retry delay for the condition that kept
// infoSaysReady false: while the server is loading a dataset, retry after
// min(loading_eta_seconds, 1) seconds; while a replica's link to its
// master is still coming up, retry after a fixed 50ms.
func nextReadyCheckDelay(info map[string]string) time.Duration {
	if info["loading"] == "1" {
		delay := readyCheckLoadingMaxDelay
		if etaStr, ok := info["loading_eta_seconds"]; ok {
			if eta, err := strconv.ParseFloat(etaStr, 64); err == nil {
				if d := time.Duration(eta * float64(time.Second)); d < delay {
					delay = d
				}
			}
		}
		return delay
	}
	if status, ok := info["master_link_status"]; ok && status != "up" {
		return readyCheckReplicaDelay
	}
	return readyCheckInterval
}

// parseInfo splits an INFO reply's "key:value\r\n" lines into a flat map,
// skipping section headers ("# Replication") and blank lines.
func parseInfo(text string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(text, "\r\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}
