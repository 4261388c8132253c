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

// Package respconf holds the ambient configuration knobs a respd
// embedder wires up around the core reactor/server/resp packages:
// listener address parsing, byte-size config values, and a
// file-watched, hot-reloadable list of listener addresses.
package respconf

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAddr parses a listener address string into its network, host
// and port parts. Accepted forms, matching the original's addr_listen:
// "tcp://host:port", "host:port", and the bracketed IPv6 form
// "[::1]:port". Any other "scheme://" prefix is rejected.
func ParseAddr(s string) (network, host string, port int, err error) {
	network = "tcp"
	rest := s
	if idx := strings.Index(s, "://"); idx != -1 {
		scheme := s[:idx]
		if scheme != "tcp" {
			return "", "", 0, fmt.Errorf("invalid address: %s", s)
		}
		rest = s[idx+3:]
	}

	colon := strings.LastIndexByte(rest, ':')
	if colon == -1 {
		return "", "", 0, fmt.Errorf("invalid address: %s", s)
	}
	host = rest[:colon]
	portStr := rest[colon+1:]
	p, perr := strconv.ParseUint(portStr, 10, 16)
	if perr != nil {
		return "", "", 0, fmt.Errorf("invalid address: %s", s)
	}
	if len(host) >= 2 && host[0] == '[' && host[len(host)-1] == ']' {
		host = host[1 : len(host)-1]
	}
	return network, host, int(p), nil
}
