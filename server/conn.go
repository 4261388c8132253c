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

package server

import (
	"github.com/google/uuid"

	"github.com/launix-de/respd/reactor"
	"github.com/launix-de/respd/resp"
)

// wrbufShrinkThreshold mirrors reactor's own write-buffer shrink
// threshold: once a reply buffer has grown past this many bytes and
// then fully drained into rc.Write, its storage is released instead of
// kept around for the next reply.
const wrbufShrinkThreshold = 4096

// Conn wraps a *reactor.Conn with RESP/inline reply-framing and the
// per-connection parser state (packet buffer, argument vector). One is
// created per accepted connection and stashed as the reactor.Conn's
// user data, matching struct miniredis_conn's relationship to struct
// event_conn.
type Conn struct {
	rc     *reactor.Conn
	s      *server
	packet packetBuf
	args   resp.Args
	wrbuf  packetBuf
	udata  any
}

func newConn(rc *reactor.Conn, s *server) *Conn {
	return &Conn{rc: rc, s: s}
}

// Addr returns the connection's printable peer address.
func (c *Conn) Addr() string { return c.rc.Addr() }

// ID returns this connection's correlation id.
func (c *Conn) ID() uuid.UUID { return c.rc.ID() }

// UserData returns the opaque value most recently passed to
// SetUserData, or nil.
func (c *Conn) UserData() any { return c.udata }

// SetUserData attaches an opaque value to the connection, for an
// embedder to stash per-connection application state on (e.g. the
// selected database index).
func (c *Conn) SetUserData(v any) { c.udata = v }

// Closed reports whether the connection has been closed, or close has
// been requested and is pending a final flush.
func (c *Conn) Closed() bool { return c.rc.Closed() }

// BytesRead returns the running total of bytes read from this
// connection.
func (c *Conn) BytesRead() uint64 { return c.rc.BytesRead() }

// BytesWritten returns the running total of bytes written to this
// connection.
func (c *Conn) BytesWritten() uint64 { return c.rc.BytesWritten() }

// Close requests the connection be torn down once any pending reply has
// drained.
func (c *Conn) Close() { c.rc.Close() }

// flush hands the accumulated reply bytes to the reactor and then
// shrinks or truncates wrbuf, matching miniredis.c's rwrite macro:
// write the framed reply, then either free the buffer (it grew past
// the threshold) or just reset its length to zero.
func (c *Conn) flush() {
	if c.wrbuf.Len() == 0 {
		return
	}
	c.rc.Write(c.wrbuf.Bytes())
	c.wrbuf.Reset(wrbufShrinkThreshold)
}

// WriteStatus sends a RESP simple-string reply ("+OK", etc).
func (c *Conn) WriteStatus(s string) {
	resp.WriteStatus(&c.wrbuf.Buffer, s)
	c.flush()
}

// WriteError sends a RESP error reply ("-ERR ...").
func (c *Conn) WriteError(s string) {
	resp.WriteError(&c.wrbuf.Buffer, s)
	c.flush()
}

// WriteInt sends a RESP integer reply.
func (c *Conn) WriteInt(n int64) {
	resp.WriteInt(&c.wrbuf.Buffer, n)
	c.flush()
}

// WriteBulk sends a RESP bulk-string reply; a nil data writes the null
// bulk reply.
func (c *Conn) WriteBulk(data []byte) {
	resp.WriteBulk(&c.wrbuf.Buffer, data)
	c.flush()
}

// WriteNull sends the RESP null bulk reply ("$-1").
func (c *Conn) WriteNull() {
	resp.WriteNullBulk(&c.wrbuf.Buffer)
	c.flush()
}

// WriteArrayHeader sends a RESP array header ("*<n>"); the caller is
// responsible for writing exactly n elements afterwards with further
// Write* calls.
func (c *Conn) WriteArrayHeader(n int) {
	resp.WriteArrayHeader(&c.wrbuf.Buffer, n)
	c.flush()
}

// WriteNullArray sends the RESP null array reply ("*-1").
func (c *Conn) WriteNullArray() {
	resp.WriteNullArray(&c.wrbuf.Buffer)
	c.flush()
}

// WriteRaw appends data to the reply stream unframed, for callers that
// build a multi-part reply (e.g. an array header followed by each
// element) out of several Write* calls.
func (c *Conn) WriteRaw(data []byte) {
	resp.WriteRaw(&c.wrbuf.Buffer, data)
	c.flush()
}
