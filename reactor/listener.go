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
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/launix-de/respd/respconf"
)

// boundSocket is one bound, listening, nonblocking socket plus its
// printable address - the Go analogue of one entry in the original's
// struct addr (host resolves to possibly several addrinfo results, one
// socket each).
type boundSocket struct {
	fd   int
	addr string
}

// openListeners resolves spec (as respconf.ParseAddr accepts it),
// binds and starts listening on every resolved IP, and returns one
// boundSocket per successfully bound address - mirroring addr_listen's
// loop over getaddrinfo results, continuing past per-address failures
// and only failing the whole call if none bound.
func openListeners(spec string) ([]boundSocket, error) {
	_, host, port, err := respconf.ParseAddr(spec)
	if err != nil {
		return nil, err
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("getaddrinfo: %s: %s", err, spec)
	}

	var socks []boundSocket
	var lastErr error
	for _, ip := range ips {
		fd, err := bindListen(ip, port)
		if err != nil {
			lastErr = err
			continue
		}
		socks = append(socks, boundSocket{fd: fd, addr: printableAddr(ip, port)})
	}
	if len(socks) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("address fail: %s", spec)
	}
	return socks, nil
}

func printableAddr(ip net.IP, port int) string {
	if ip4 := ip.To4(); ip4 != nil {
		return fmt.Sprintf("tcp://%s:%d", ip4.String(), port)
	}
	return fmt.Sprintf("tcp://[%s]:%d", ip.String(), port)
}

func bindListen(ip net.IP, port int) (int, error) {
	var domain int
	var sa unix.Sockaddr
	if ip4 := ip.To4(); ip4 != nil {
		var addr [4]byte
		copy(addr[:], ip4)
		domain = unix.AF_INET
		sa = &unix.SockaddrInet4{Port: port, Addr: addr}
	} else {
		var addr [16]byte
		copy(addr[:], ip.To16())
		domain = unix.AF_INET6
		sa = &unix.SockaddrInet6{Port: port, Addr: addr}
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	// TIME_WAIT
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt(SO_REUSEADDR): %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setnonblock: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// setKeepalive matches setkeepalive: SO_KEEPALIVE on with a 600s idle
// time, 60s probe interval and 6 probes before the peer is considered
// dead.
func setKeepalive(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, 600); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, 60); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPCNT, 6); err != nil {
		return err
	}
	return nil
}

// setTCPNoDelay matches settcpnodelay: available for a caller to opt a
// connection into, but never enabled by default (Nagle stays on by
// default, matching the original).
func setTCPNoDelay(fd int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v)
}

func sockaddrString(sa unix.Sockaddr) string {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(s.Addr[:])
		return fmt.Sprintf("tcp://%s:%d", ip.String(), s.Port)
	case *unix.SockaddrInet6:
		ip := net.IP(s.Addr[:])
		return fmt.Sprintf("tcp://[%s]:%d", ip.String(), s.Port)
	default:
		return "tcp://unknown"
	}
}
