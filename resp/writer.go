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

package resp

import (
	"strconv"

	"github.com/launix-de/respd/buf"
)

// sanitizeLine replaces any control byte below 0x20 with a space,
// matching the original's handling of status/error reply lines, so a
// malicious or buggy command handler can never inject a spurious CRLF
// into the wire stream.
func sanitizeLine(dst *buf.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < 0x20 {
			ch = ' '
		}
		dst.AppendByte(ch)
	}
}

// WriteStatus appends a RESP simple-string reply: "+<s>\r\n".
func WriteStatus(dst *buf.Buffer, s string) {
	dst.AppendByte('+')
	sanitizeLine(dst, s)
	dst.AppendString("\r\n")
}

// WriteError appends a RESP error reply: "-<s>\r\n".
func WriteError(dst *buf.Buffer, s string) {
	dst.AppendByte('-')
	sanitizeLine(dst, s)
	dst.AppendString("\r\n")
}

// WriteInt appends a RESP integer reply: ":<n>\r\n".
func WriteInt(dst *buf.Buffer, n int64) {
	dst.AppendByte(':')
	dst.AppendString(strconv.FormatInt(n, 10))
	dst.AppendString("\r\n")
}

// WriteBulk appends a RESP bulk-string reply: "$<len>\r\n<data>\r\n". A
// nil data writes the null bulk reply instead, mirroring the original's
// treatment of a NULL data pointer.
func WriteBulk(dst *buf.Buffer, data []byte) {
	if data == nil {
		WriteNullBulk(dst)
		return
	}
	dst.AppendByte('$')
	dst.AppendString(strconv.Itoa(len(data)))
	dst.AppendString("\r\n")
	dst.Append(data)
	dst.AppendString("\r\n")
}

// WriteNullBulk appends a RESP null bulk-string reply: "$-1\r\n".
func WriteNullBulk(dst *buf.Buffer) {
	dst.AppendString("$-1\r\n")
}

// WriteArrayHeader appends a RESP array header: "*<n>\r\n". The n
// elements that follow are written with further calls into dst.
func WriteArrayHeader(dst *buf.Buffer, n int) {
	dst.AppendByte('*')
	dst.AppendString(strconv.Itoa(n))
	dst.AppendString("\r\n")
}

// WriteNullArray appends a RESP null array reply: "*-1\r\n".
func WriteNullArray(dst *buf.Buffer) {
	dst.AppendString("*-1\r\n")
}

// WriteRaw appends data verbatim, with no framing of its own. Used for
// replies a handler has already framed itself (e.g. an inline-protocol
// response, which carries no RESP markers at all).
func WriteRaw(dst *buf.Buffer, data []byte) {
	dst.Append(data)
}
