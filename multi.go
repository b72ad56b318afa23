package redis

import "sync"

// Multi is a minimal transaction batch builder: it queues commands
// client-side and, on Exec, frames them between MULTI and EXEC, dispatched
// through the same SendCommand path as any other command (so a Multi
// queues into the offline queue like anything else when the connection
// isn't ready yet).
type Multi struct {
	client *Client

	mu   sync.Mutex
	cmds []queuedCmd
}

type queuedCmd struct {
	name string
	args []Arg
	sink Sink
}

// Multi begins a new transaction batch against c. Nothing is sent until
// Exec is called.
func (c *Client) Multi() *Multi {
	return &Multi{client: c}
}

// Queue appends a command to the batch. sink (optional) receives that
// command's own reply, which inside a transaction is the server's QUEUED
// acknowledgement; the command's result is only in the EXEC reply array
// that Exec's Future resolves with, and is not delivered to sink.
func (m *Multi) Queue(name string, args []Arg, sink Sink) *Multi {
	m.mu.Lock()
	m.cmds = append(m.cmds, queuedCmd{name: name, args: args, sink: sink})
	m.mu.Unlock()
	return m
}

// Exec sends MULTI, every queued command, then EXEC, corking the whole
// batch (writer.go's Cork/Uncork) so it reaches the transport as one
// pipeline regardless of fire_strings routing. The returned Future
// resolves with the EXEC reply (an array of per-command results, or nil
// if the transaction was discarded).
func (m *Multi) Exec() *Future {
	m.mu.Lock()
	cmds := m.cmds
	m.cmds = nil
	m.mu.Unlock()

	m.client.Cork()
	defer m.client.Uncork()

	m.client.SendCommand("multi", nil, nil)
	for _, qc := range cmds {
		m.client.SendCommand(qc.name, qc.args, qc.sink)
	}
	return m.client.SendCommandFuture("exec", nil)
}

// Discard abandons a batch without sending MULTI/EXEC at all.
func (m *Multi) Discard() {
	m.mu.Lock()
	m.cmds = nil
	m.mu.Unlock()
}
