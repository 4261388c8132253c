/*
Copyright (C) 2023, 2024  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package reactor

import (
	"github.com/google/uuid"

	"github.com/launix-de/respd/buf"
)

// Conn is one accepted, nonblocking connection. All of its methods
// must be called from the reactor's own goroutine - the same
// single-threaded-access rule the original places on struct event_conn.
type Conn struct {
	fd         int
	closed     bool
	woke       bool
	faulty     bool
	wbuf       buf.Buffer
	wbufIdx    int
	addr       string
	id         uuid.UUID
	bytesRead  uint64
	bytesWritten uint64
	udata      any
	nextFaulty *Conn
	r          *Reactor
}

// Addr returns the connection's printable peer address, e.g.
// "tcp://127.0.0.1:54321".
func (c *Conn) Addr() string { return c.addr }

// ID returns this connection's correlation id, assigned once at
// accept() time and never reused or derived from wire traffic.
func (c *Conn) ID() uuid.UUID { return c.id }

// UserData returns the opaque value most recently passed to
// SetUserData, or nil.
func (c *Conn) UserData() any { return c.udata }

// SetUserData attaches an opaque value to the connection, for a caller
// to stash per-connection state in (e.g. the server package's *Conn
// wrapper).
func (c *Conn) SetUserData(v any) { c.udata = v }

// Closed reports whether Close has been called (or the connection has
// already been torn down).
func (c *Conn) Closed() bool { return c.closed }

// BytesRead returns the running total of bytes read from this
// connection.
func (c *Conn) BytesRead() uint64 { return c.bytesRead }

// BytesWritten returns the running total of bytes written to this
// connection.
func (c *Conn) BytesWritten() uint64 { return c.bytesWritten }

// Write appends data to the connection's write buffer and arms write
// readiness. It is safe to call from inside the Data callback; it is
// not safe to call from any other goroutine.
func (c *Conn) Write(data []byte) {
	if c.faulty || c.closed {
		return
	}
	c.wbuf.Append(data)
	if !c.r.wake(c) {
		c.r.setFault(c)
	}
}

// Close requests the connection be torn down once its write buffer has
// drained. It does not close the socket immediately.
func (c *Conn) Close() {
	if c.faulty || c.closed {
		return
	}
	c.closed = true
	if !c.r.wake(c) {
		c.r.setFault(c)
	}
}

// SetNoDelay toggles TCP_NODELAY (disabling/enabling Nagle's
// algorithm). Unset by default, matching the original's settcpnodelay,
// which is wired up but never called unconditionally.
func (c *Conn) SetNoDelay(on bool) error {
	return setTCPNoDelay(c.fd, on)
}
