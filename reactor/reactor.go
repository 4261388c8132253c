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

// Package reactor implements a single-threaded, readiness-driven I/O
// loop: one goroutine owns an epoll instance, every accepted
// connection, and their write buffers. It is a line-by-line port of
// event.c/event.h: net_queue/net_addrd/net_addwr/net_delwr/net_events
// become the poller interface, struct event_conn becomes Conn, and
// thread()'s two-pass ready-list handling (read pump, then flush +
// buffer shrink) is reproduced in Run.
package reactor

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/launix-de/respd/hashmap"
)

const (
	maxEvents              = 128
	readChunkSize          = 4096
	writeBufShrinkThreshold = 4096
	defaultTickDelayNS      = int64(50 * time.Millisecond)
	maxWaitDelayNS          = int64(time.Second)
)

// Callbacks mirrors event.c's event_events, plus the tick/sync pair
// miniredis.c layers on top of it to steer the wait timeout.
type Callbacks struct {
	Data    func(conn *Conn, data []byte)
	Opened  func(conn *Conn)
	Closed  func(conn *Conn)
	Serving func(addrs []string)
	Error   func(message string, fatal bool)
	// Tick returns the number of nanoseconds to wait before the next
	// loop iteration even if nothing is ready; nil means a fixed 50ms
	// backoff, matching the original's default.
	Tick func() int64
	// Sync reports whether the loop is caught up and may use Tick's
	// delay; nil means always true.
	Sync func() bool
}

type listenerSocket struct {
	fd   int
	addr string
}

// Reactor owns one epoll instance, its listener sockets and accepted
// connections. Create with New, then call Run from the goroutine that
// will own it for its whole lifetime.
type Reactor struct {
	poller    poller
	conns     *hashmap.Map[int, *Conn]
	listeners map[int]*listenerSocket
	faulty    *Conn
	cb        Callbacks

	addAddr      chan string
	wakeR, wakeW int
}

func fdHash(fd int) uint64 { return uint64(fd) }

// New creates a reactor bound to cb. It does not bind any listener
// sockets yet - call Run to do that and enter the loop.
func New(cb Callbacks) (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("net_queue: %w", err)
	}
	r := &Reactor{
		poller:    p,
		conns:     hashmap.New[int, *Conn](fdHash, 64),
		listeners: make(map[int]*listenerSocket),
		cb:        cb,
		addAddr:   make(chan string, 16),
	}
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK); err != nil {
		p.close()
		return nil, fmt.Errorf("pipe2: %w", err)
	}
	r.wakeR, r.wakeW = fds[0], fds[1]
	if err := r.poller.add(r.wakeR); err != nil {
		p.close()
		return nil, err
	}
	return r, nil
}

// AddListener queues addr to be bound and added to the running loop.
// It is the only Reactor method safe to call from a goroutine other
// than the one running Run; the new listener is actually opened on the
// reactor goroutine once it wakes from this call's self-pipe nudge.
func (r *Reactor) AddListener(addr string) error {
	select {
	case r.addAddr <- addr:
	default:
		return fmt.Errorf("AddListener: backlog full")
	}
	_, err := unix.Write(r.wakeW, []byte{0})
	if err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

// Run binds addrs, fires Serving once, then blocks running the
// readiness loop until an unrecoverable poller error occurs.
func (r *Reactor) Run(addrs []string) error {
	var servingAddrs []string
	for _, a := range addrs {
		socks, err := openListeners(a)
		if err != nil {
			return err
		}
		for _, s := range socks {
			if err := r.poller.add(s.fd); err != nil {
				return fmt.Errorf("net_addrd(socket): %w", err)
			}
			r.listeners[s.fd] = &listenerSocket{fd: s.fd, addr: s.addr}
			servingAddrs = append(servingAddrs, s.addr)
		}
	}
	if r.cb.Serving != nil {
		r.cb.Serving(servingAddrs)
	}

	fds := make([]int, maxEvents)
	synced := false

	for {
		timeoutMS := 0
		if synced {
			delay := defaultTickDelayNS
			if r.cb.Tick != nil {
				delay = r.cb.Tick()
			}
			if delay < 0 {
				timeoutMS = -1
			} else {
				if delay > maxWaitDelayNS {
					delay = maxWaitDelayNS
				}
				timeoutMS = int(delay / int64(time.Millisecond))
			}
		}

		n, err := r.poller.wait(timeoutMS, fds)
		if err != nil {
			return fmt.Errorf("net_events: %w", err)
		}

		if r.faulty != nil {
			for r.faulty != nil {
				c := r.faulty
				r.faulty = c.nextFaulty
				r.closeRemove(c)
			}
			continue
		}

		for i := 0; i < n; i++ {
			fd := fds[i]
			if fd == r.wakeR {
				r.drainWake()
				continue
			}
			if _, isListener := r.listeners[fd]; isListener {
				r.accept(fd)
				continue
			}
			conn, ok := r.conns.Get(fd)
			if !ok {
				continue
			}
			if !r.flush(conn) {
				continue
			}
			r.readPump(conn)
		}

		for i := 0; i < n; i++ {
			fd := fds[i]
			if fd == r.wakeR {
				continue
			}
			if _, isListener := r.listeners[fd]; isListener {
				continue
			}
			conn, ok := r.conns.Get(fd)
			if !ok {
				continue
			}
			if !r.flush(conn) {
				continue
			}
			if conn.wbuf.Cap() > writeBufShrinkThreshold {
				conn.wbuf.Reset(writeBufShrinkThreshold)
			}
		}

		if r.cb.Sync != nil {
			synced = r.cb.Sync()
		} else {
			synced = true
		}
	}
}

func (r *Reactor) drainWake() {
	var scratch [64]byte
	for {
		n, err := unix.Read(r.wakeR, scratch[:])
		if n <= 0 || err != nil {
			break
		}
	}
	for {
		select {
		case addr := <-r.addAddr:
			r.addListenerNow(addr)
		default:
			return
		}
	}
}

func (r *Reactor) addListenerNow(addr string) {
	socks, err := openListeners(addr)
	if err != nil {
		if r.cb.Error != nil {
			r.cb.Error(err.Error(), false)
		}
		return
	}
	var addrs []string
	for _, s := range socks {
		if err := r.poller.add(s.fd); err != nil {
			if r.cb.Error != nil {
				r.cb.Error(err.Error(), false)
			}
			unix.Close(s.fd)
			continue
		}
		r.listeners[s.fd] = &listenerSocket{fd: s.fd, addr: s.addr}
		addrs = append(addrs, s.addr)
	}
	if r.cb.Serving != nil && len(addrs) > 0 {
		r.cb.Serving(addrs)
	}
}

func (r *Reactor) accept(listenerFd int) {
	cfd, sa, err := unix.Accept4(listenerFd, unix.SOCK_NONBLOCK)
	if err != nil {
		return
	}
	if err := setKeepalive(cfd); err != nil {
		unix.Close(cfd)
		return
	}
	if err := r.poller.add(cfd); err != nil {
		unix.Close(cfd)
		return
	}
	conn := &Conn{
		fd:   cfd,
		addr: sockaddrString(sa),
		id:   uuid.New(),
		r:    r,
	}
	if _, had := r.conns.Set(cfd, conn); had {
		panic("reactor: duplicate fd")
	}
	if r.cb.Opened != nil {
		r.cb.Opened(conn)
	}
}

func (r *Reactor) readPump(conn *Conn) {
	var scratch [readChunkSize]byte
	for {
		n, err := unix.Read(conn.fd, scratch[:])
		if n <= 0 {
			if n == 0 || (err != nil && err != unix.EAGAIN) {
				r.closeRemove(conn)
			}
			return
		}
		conn.bytesRead += uint64(n)
		if r.cb.Data != nil {
			conn.woke = true
			r.cb.Data(conn, scratch[:n])
			conn.woke = false
		}
		if conn.closed {
			// Close was requested from inside the Data callback, quite
			// possibly together with a queued reply (e.g. quit's
			// "+OK\r\n"). Stop reading, but leave teardown to this
			// loop iteration's second pass, whose flush() drains wbuf
			// before tearing the connection down - tearing down here
			// would discard any reply bytes not yet written to the fd.
			return
		}
	}
}

func (r *Reactor) flush(conn *Conn) bool {
	if conn.wbuf.Len() > 0 {
		data := conn.wbuf.Bytes()
		for conn.wbufIdx < len(data) {
			n, err := unix.Write(conn.fd, data[conn.wbufIdx:])
			if n < 0 {
				n = 0
			}
			if err != nil {
				if err == unix.EAGAIN {
					if !r.wake(conn) {
						r.closeRemove(conn)
						return false
					}
					conn.wbufIdx += n
					return false
				}
				r.closeRemove(conn)
				return false
			}
			conn.bytesWritten += uint64(n)
			conn.wbufIdx += n
		}
		conn.wbuf.Truncate()
		conn.wbufIdx = 0
	}
	if conn.closed {
		r.closeRemove(conn)
		return false
	}
	if !r.unwake(conn) {
		r.closeRemove(conn)
		return false
	}
	return true
}

func (r *Reactor) wake(conn *Conn) bool {
	if !conn.woke {
		if err := r.poller.addWrite(conn.fd); err != nil {
			return false
		}
		conn.woke = true
	}
	return true
}

func (r *Reactor) unwake(conn *Conn) bool {
	if conn.woke {
		if err := r.poller.delWrite(conn.fd); err != nil {
			return false
		}
		conn.woke = false
	}
	return true
}

func (r *Reactor) setFault(conn *Conn) {
	if conn.faulty {
		return
	}
	conn.faulty = true
	conn.nextFaulty = r.faulty
	r.faulty = conn
}

func (r *Reactor) closeRemove(conn *Conn) {
	conn.wbuf.Clear()
	unix.Close(conn.fd)
	r.conns.Delete(conn.fd)
	conn.closed = true
	if r.cb.Closed != nil {
		r.cb.Closed(conn)
	}
}

// Conns returns every currently-open connection, for introspection
// callers such as respstats. The returned slice is a snapshot; the
// reactor itself never blocks on it.
func (r *Reactor) Conns() []*Conn {
	var out []*Conn
	r.conns.Scan(func(_ int, c *Conn) bool {
		out = append(out, c)
		return true
	})
	return out
}
