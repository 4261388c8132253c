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

// Command respd is an example embedder of package server: an in-memory
// key/value store speaking PING/ECHO/GET/SET/DEL/EXISTS over RESP and
// the inline protocol. It is not part of the core framework - it exists
// to give the hash table, the uuid/go-units/fsnotify/onexit/btree
// domain wiring, and the server callback surface a runnable home.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dc0d/onexit"
	"github.com/google/btree"

	"github.com/launix-de/go-mysqlstack/xlog"

	"github.com/launix-de/respd/respconf"
	"github.com/launix-de/respd/resp"
	"github.com/launix-de/respd/respstats"
	"github.com/launix-de/respd/server"
)

func main() {
	addr := flag.String("listen", "tcp://127.0.0.1:6380", "listener address (scheme://host:port)")
	listenFile := flag.String("listen-file", "", "optional newline-separated file of additional listener addresses, hot-reloaded")
	maxValueSize := flag.String("max-value-size", "512MiB", "largest accepted SET value (parsed with docker/go-units)")
	flag.Parse()

	maxBytes, err := respconf.ParseSize(*maxValueSize)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid -max-value-size:", err)
		os.Exit(1)
	}

	log := xlog.NewStdLog(xlog.Level(xlog.INFO))
	store := newStore(fnv1a, 1024, int(maxBytes))
	stats := respstats.NewSnapshot()
	idle := newIdleIndex()

	cb := server.Callbacks{
		Opened: func(c *server.Conn) {
			idle.touch(c)
			stats.Open(c.ID(), c.Addr(), time.Now())
		},
		Closed: func(c *server.Conn) {
			idle.forget(c)
			stats.Remove(c.ID())
		},
		Command: func(c *server.Conn, args *resp.Args) {
			idle.touch(c)
			stats.Update(c.ID(), c.Addr(), c.BytesRead(), c.BytesWritten())
			dispatch(store, c, args)
		},
		Tick: func() int64 {
			if oldest, ok := idle.oldest(); ok {
				log.Info(fmt.Sprintf("oldest idle connection %s idle for %s", oldest.id, time.Since(oldest.lastActive)))
			}
			return int64(5 * time.Second)
		},
		Sync: func() bool { return true },
		Error: func(message string, fatal bool) {
			log.Error(message)
		},
	}

	srv, err := server.New(cb, server.Options{Logger: log})
	if err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}

	onexit.Register(func() {
		log.Info(fmt.Sprintf("respd shutting down: %d keys, %d open connections", store.m.Count(), stats.Len()))
	})

	if *listenFile != "" {
		closer, err := respconf.WatchAddresses(*listenFile, func(a string) {
			if err := srv.AddListener(a); err != nil {
				log.Error(err.Error())
			}
		})
		if err != nil {
			log.Error(err.Error())
			os.Exit(1)
		}
		defer closer.Close()
	}

	if err := srv.Run([]string{*addr}); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

// idleIndex orders currently-open connections by last-activity time, so
// Tick can cheaply report the oldest-idle one - a btree.BTreeG is kept
// up to date by deleting and reinserting on every touch, the same
// delete-then-reinsert shape the teacher's storage delta btree uses
// when a row's indexed columns change.
type idleIndex struct {
	tree *btree.BTreeG[idleEntry]
}

type idleEntry struct {
	lastActive time.Time
	id         string
}

func idleLess(a, b idleEntry) bool {
	if a.lastActive.Equal(b.lastActive) {
		return a.id < b.id
	}
	return a.lastActive.Before(b.lastActive)
}

func newIdleIndex() *idleIndex {
	return &idleIndex{tree: btree.NewG[idleEntry](32, idleLess)}
}

func (x *idleIndex) touch(c *server.Conn) {
	if prev, ok := c.UserData().(idleEntry); ok {
		x.tree.Delete(prev)
	}
	e := idleEntry{lastActive: time.Now(), id: c.ID().String()}
	x.tree.ReplaceOrInsert(e)
	c.SetUserData(e)
}

func (x *idleIndex) forget(c *server.Conn) {
	if prev, ok := c.UserData().(idleEntry); ok {
		x.tree.Delete(prev)
	}
}

func (x *idleIndex) oldest() (idleEntry, bool) {
	return x.tree.Min()
}
