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

// Command resp-ws-bridge is a standalone edge transport: it accepts
// WebSocket text-frame connections and relays each one to a dialed-up
// respd TCP listener, verbatim in both directions (WS text frame in ->
// inline protocol line out; RESP reply bytes in -> WS text frame out,
// split on "\r\n"). It is a client of a normal tcp:// listener, not a
// new listener form - package reactor and package respconf are
// unaware this process exists.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	listenAddr := flag.String("listen", "127.0.0.1:8080", "address to accept WebSocket connections on")
	backend := flag.String("backend", "127.0.0.1:6380", "respd TCP listener to relay to")
	path := flag.String("path", "/resp", "HTTP path to upgrade to WebSocket on")
	flag.Parse()

	http.HandleFunc(*path, func(w http.ResponseWriter, r *http.Request) {
		handleConn(w, r, *backend)
	})
	fmt.Printf("resp-ws-bridge listening on %s%s, relaying to tcp://%s\n", *listenAddr, *path, *backend)
	log.Fatal(http.ListenAndServe(*listenAddr, nil))
}

func handleConn(w http.ResponseWriter, r *http.Request, backend string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("upgrade:", err)
		return
	}
	defer ws.Close()

	tcp, err := net.Dial("tcp", backend)
	if err != nil {
		ws.WriteMessage(websocket.TextMessage, []byte("-ERR backend unavailable: "+err.Error()))
		return
	}
	defer tcp.Close()

	done := make(chan struct{})
	go pumpTCPToWS(tcp, ws, done)
	pumpWSToTCP(ws, tcp)
	<-done
}

// pumpWSToTCP relays each WS text frame to the backend as one inline
// protocol line.
func pumpWSToTCP(ws *websocket.Conn, tcp net.Conn) {
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		line := strings.TrimRight(string(data), "\r\n")
		if _, err := fmt.Fprintf(tcp, "%s\n", line); err != nil {
			return
		}
	}
}

// pumpTCPToWS relays RESP reply bytes from the backend to the browser,
// one WS text frame per "\r\n"-terminated line.
func pumpTCPToWS(tcp net.Conn, ws *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	r := bufio.NewReader(tcp)
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			frame := strings.TrimRight(line, "\r\n")
			if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
