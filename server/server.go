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

// Package server layers command dispatch on top of package reactor: it
// owns the per-connection packet buffer and argument vector, runs
// resp.Parse in a loop against whatever the reactor hands it, intercepts
// quit, and otherwise forwards a parsed command to the embedder's
// Command callback. It is a port of miniredis.c/miniredis.h's data(),
// struct miniredis_conn and struct miniredis_events onto package
// reactor.
package server

import (
	"github.com/launix-de/go-mysqlstack/xlog"

	"github.com/launix-de/respd/buf"
	"github.com/launix-de/respd/reactor"
	"github.com/launix-de/respd/resp"
)

// Callbacks mirrors miniredis.h's struct miniredis_events field for
// field: Serving/Opened/Closed/Error/Tick/Sync pass straight through to
// the reactor, Command replaces the original's data callback once quit
// handling and protocol parsing have already happened.
type Callbacks struct {
	Serving func(addrs []string)
	Opened  func(c *Conn)
	Closed  func(c *Conn)
	Command func(c *Conn, args *resp.Args)
	Error   func(message string, fatal bool)
	Tick    func() int64
	Sync    func() bool
}

// Options carries the ambient knobs that do not belong on Callbacks.
// Logger follows scm/mysql.go's xlog.NewStdLog(xlog.Level(...)) pattern;
// a nil Logger disables logging entirely.
type Options struct {
	Logger *xlog.Log
}

// Server binds Callbacks to a running reactor. Create one with New, then
// call Run from the goroutine that will own it for its lifetime; unlike
// Run, AddListener may be called from any other goroutine.
type Server struct {
	s *server
	r *reactor.Reactor
}

// New creates a Server bound to cb. It does not bind any listener
// sockets yet - call Run to do that and enter the loop.
func New(cb Callbacks, opts Options) (*Server, error) {
	s := &server{cb: cb, log: opts.Logger}
	r, err := reactor.New(reactor.Callbacks{
		Data: s.data,
		Opened: func(rc *reactor.Conn) {
			c := newConn(rc, s)
			rc.SetUserData(c)
			if s.log != nil {
				s.log.Info("opened " + c.Addr())
			}
			if cb.Opened != nil {
				cb.Opened(c)
			}
		},
		Closed: func(rc *reactor.Conn) {
			c := rc.UserData().(*Conn)
			if s.log != nil {
				s.log.Info("closed " + c.Addr())
			}
			if cb.Closed != nil {
				cb.Closed(c)
			}
		},
		Serving: func(addrs []string) {
			if s.log != nil {
				for _, a := range addrs {
					s.log.Info("serving " + a)
				}
			}
			if cb.Serving != nil {
				cb.Serving(addrs)
			}
		},
		Error: func(message string, fatal bool) {
			if s.log != nil {
				s.log.Error(message)
			}
			if cb.Error != nil {
				cb.Error(message, fatal)
			}
		},
		Tick: cb.Tick,
		Sync: cb.Sync,
	})
	if err != nil {
		return nil, err
	}
	s.reactor = r
	return &Server{s: s, r: r}, nil
}

// Run binds addrs and runs the reactor loop until it returns a fatal
// error. It never returns otherwise.
func (srv *Server) Run(addrs []string) error {
	return srv.r.Run(addrs)
}

// AddListener queues addr to be bound and added to the already-running
// loop, e.g. in response to a respconf.WatchAddresses callback. Safe to
// call from any goroutine.
func (srv *Server) AddListener(addr string) error {
	return srv.r.AddListener(addr)
}

// ListenAndServe is a convenience wrapper for the common case of a
// fixed, startup-known listener set with no later AddListener calls.
func ListenAndServe(addrs []string, cb Callbacks, opts Options) error {
	srv, err := New(cb, opts)
	if err != nil {
		return err
	}
	return srv.Run(addrs)
}

// server holds the state shared by every connection's callback
// invocations - there is exactly one per ListenAndServe call.
type server struct {
	cb      Callbacks
	log     *xlog.Log
	reactor *reactor.Reactor
}

// data is the reactor.Callbacks.Data implementation: it appends newly
// read bytes to the connection's packet buffer, then repeatedly parses
// and dispatches complete commands out of it, matching miniredis.c's
// data() function (accumulate-then-drain, not parse-one-shot).
func (s *server) data(rc *reactor.Conn, chunk []byte) {
	c := rc.UserData().(*Conn)
	c.packet.Append(chunk)

	for {
		remaining := c.packet.Bytes()
		if len(remaining) == 0 {
			return
		}
		n, perr := resp.Parse(remaining, &c.args)
		if perr != nil {
			c.WriteError(perr.Message)
			c.Close()
			return
		}
		if n == 0 {
			// Not enough bytes yet for a full command; leave the
			// packet buffer as-is and wait for the next chunk.
			return
		}

		if c.args.Len() > 0 && c.args.EqualFold(0, "quit") {
			c.WriteStatus("OK")
			c.Close()
			return
		}
		if c.args.Len() > 0 && s.cb.Command != nil {
			s.cb.Command(c, &c.args)
		}
		if c.Closed() {
			return
		}
		c.packet.consume(n)
	}
}

// consume drops the first n bytes of the packet buffer, shifting
// whatever remains down to the front for the next parse attempt.
func (b *packetBuf) consume(n int) {
	data := b.Bytes()
	rest := append([]byte(nil), data[n:]...)
	b.Truncate()
	b.Append(rest)
}

// packetBuf is buf.Buffer with the one extra operation data() needs.
type packetBuf struct {
	buf.Buffer
}
