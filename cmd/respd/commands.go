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

package main

import (
	"github.com/launix-de/respd/hashmap"
	"github.com/launix-de/respd/resp"
	"github.com/launix-de/respd/server"
)

// store is the example embedder's keyspace: a plain hashmap.Map, safe
// to use without locks because every Command callback runs on the
// single reactor goroutine - the same single-threaded-ownership
// discipline package reactor itself relies on.
type store struct {
	m           *hashmap.Map[string, []byte]
	maxValueLen int
}

func newStore(hash func(string) uint64, minCap, maxValueLen int) *store {
	return &store{m: hashmap.New[string, []byte](hash, minCap), maxValueLen: maxValueLen}
}

// fnv1a is the keyspace's string hash - FNV-1a, chosen over a
// cryptographic hash because hashmap.Map only needs good bucket
// distribution, not collision resistance.
func fnv1a(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

// dispatch implements the example command set: PING, ECHO, GET, SET,
// DEL, EXISTS. Unknown commands and wrong arities get a RESP error
// reply, matching how resp.WriteError frames the original's own error
// strings.
func dispatch(s *store, c *server.Conn, args *resp.Args) {
	switch {
	case args.EqualFold(0, "ping"):
		if args.Len() > 1 {
			c.WriteBulk(args.At(1))
		} else {
			c.WriteStatus("PONG")
		}
	case args.EqualFold(0, "echo"):
		if args.Len() != 2 {
			c.WriteError("ERR wrong number of arguments for 'echo' command")
			return
		}
		c.WriteBulk(args.At(1))
	case args.EqualFold(0, "get"):
		if args.Len() != 2 {
			c.WriteError("ERR wrong number of arguments for 'get' command")
			return
		}
		if v, ok := s.m.Get(string(args.At(1))); ok {
			c.WriteBulk(v)
		} else {
			c.WriteNull()
		}
	case args.EqualFold(0, "set"):
		if args.Len() != 3 {
			c.WriteError("ERR wrong number of arguments for 'set' command")
			return
		}
		if s.maxValueLen > 0 && len(args.At(2)) > s.maxValueLen {
			c.WriteError("ERR value too large")
			return
		}
		v := append([]byte(nil), args.At(2)...)
		s.m.Set(string(args.At(1)), v)
		c.WriteStatus("OK")
	case args.EqualFold(0, "del"):
		if args.Len() < 2 {
			c.WriteError("ERR wrong number of arguments for 'del' command")
			return
		}
		var n int64
		for i := 1; i < args.Len(); i++ {
			if _, had := s.m.Delete(string(args.At(i))); had {
				n++
			}
		}
		c.WriteInt(n)
	case args.EqualFold(0, "exists"):
		if args.Len() < 2 {
			c.WriteError("ERR wrong number of arguments for 'exists' command")
			return
		}
		var n int64
		for i := 1; i < args.Len(); i++ {
			if s.m.Has(string(args.At(i))) {
				n++
			}
		}
		c.WriteInt(n)
	default:
		c.WriteError("ERR unknown command '" + string(args.At(0)) + "'")
	}
}
