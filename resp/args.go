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

import "github.com/launix-de/respd/buf"

// Args is an argument vector: one buffer per command argument. It is
// created empty and reused across commands on the same connection -
// capacity grows by doubling and never shrinks for the connection's
// lifetime.
type Args struct {
	bufs []buf.Buffer
	n    int
}

// Len returns the number of arguments currently held.
func (a *Args) Len() int { return a.n }

// At returns the bytes of argument i. The slice is valid only until the
// next call that mutates this Args.
func (a *Args) At(i int) []byte { return a.bufs[i].Bytes() }

// EqualFold reports whether argument i equals s, compared
// case-insensitively byte-by-byte (ASCII only, matching the original's
// tolower-based comparison).
func (a *Args) EqualFold(i int, s string) bool {
	if i < 0 || i >= a.n {
		return false
	}
	arg := a.bufs[i].Bytes()
	if len(arg) != len(s) {
		return false
	}
	for j := 0; j < len(s); j++ {
		if asciiLower(arg[j]) != asciiLower(s[j]) {
			return false
		}
	}
	return true
}

func asciiLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// reset truncates the vector to zero arguments without releasing the
// per-argument buffers' capacity.
func (a *Args) reset() { a.n = 0 }

// appendArg appends data as a new argument, growing the backing slice
// of buffers (never shrinking) as needed, and truncating-but-reusing
// the per-slot buffer storage.
func (a *Args) appendArg(data []byte) {
	if a.n == len(a.bufs) {
		newCap := len(a.bufs) * 2
		if newCap == 0 {
			newCap = 1
		}
		grown := make([]buf.Buffer, newCap)
		copy(grown, a.bufs)
		a.bufs = grown
	}
	b := &a.bufs[a.n]
	b.Truncate()
	b.Append(data)
	a.n++
}

