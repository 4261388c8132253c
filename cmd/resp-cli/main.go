/*
Copyright (C) 2023, 2024  Carl-Philip Hänsch
Copyright (C) 2013  Pieter Kelchtermans (originally licensed unter WTFPL 2.0)

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

// Command resp-cli is an interactive client: it reads lines with
// chzyer/readline exactly the way scm/prompt.go's Repl does (prompt,
// history file, ^C/EOF handling), sends each one as an inline-protocol
// command, and prints the decoded RESP reply.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
)

const newprompt = "\033[32m>\033[0m "
const resultprompt = "\033[31m=\033[0m "

func main() {
	addr := flag.String("addr", "127.0.0.1:6380", "host:port of the respd listener to connect to")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	l, err := readline.NewEx(&readline.Config{
		Prompt:            newprompt,
		HistoryFile:       ".resp-cli-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			panic(err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
			fmt.Println("write error:", err)
			break
		}
		reply, err := readReply(r)
		if err != nil {
			fmt.Println("read error:", err)
			break
		}
		fmt.Print(resultprompt)
		fmt.Println(reply)

		if strings.EqualFold(strings.TrimSpace(line), "quit") {
			break
		}
	}
}

// readReply decodes one RESP reply frame for display. It is a small,
// display-only counterpart to package resp's parser, which only ever
// decodes requests, never replies.
func readReply(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", nil
	}
	switch line[0] {
	case '+':
		return line[1:], nil
	case '-':
		return "(error) " + line[1:], nil
	case ':':
		return line[1:], nil
	case '$':
		n, err := strconv.Atoi(line[1:])
		if err != nil {
			return "", fmt.Errorf("malformed bulk header %q: %w", line, err)
		}
		if n < 0 {
			return "(nil)", nil
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		return strconv.Quote(string(buf[:n])), nil
	case '*':
		n, err := strconv.Atoi(line[1:])
		if err != nil {
			return "", fmt.Errorf("malformed array header %q: %w", line, err)
		}
		if n < 0 {
			return "(nil array)", nil
		}
		var b strings.Builder
		for i := 0; i < n; i++ {
			elem, err := readReply(r)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%d) %s\n", i+1, elem)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	default:
		return line, nil
	}
}
