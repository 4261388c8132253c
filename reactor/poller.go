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

// poller is the readiness-notification backend the reactor drives its
// loop with. It is kept behind this small interface, rather than
// calling golang.org/x/sys/unix's epoll functions directly from
// reactor.go, so a second backend (e.g. kqueue for a BSD/Darwin target)
// is a self-contained addition instead of a rewrite.
type poller interface {
	// add registers fd for read readiness only.
	add(fd int) error
	// addWrite arms write readiness in addition to read readiness.
	addWrite(fd int) error
	// delWrite disarms write readiness, leaving read readiness armed.
	delWrite(fd int) error
	// remove deregisters fd entirely.
	remove(fd int) error
	// wait blocks up to timeoutMS (or indefinitely if negative) and
	// fills fds with the ready descriptors, returning their count.
	wait(timeoutMS int, fds []int) (int, error)
	close() error
}
