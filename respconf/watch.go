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

package respconf

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// WatchAddresses reads path once synchronously, calling add for every
// complete (newline-terminated), non-blank line already present; a
// final line without a newline is left for a later read. It then
// watches path for further writes
// and calls add for each newly-appended address line. The returned
// io.Closer stops the watch.
func WatchAddresses(path string, add func(string)) (io.Closer, error) {
	offset, err := readNewAddresses(path, 0, add)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				offset, _ = readNewAddresses(path, offset, add)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher, nil
}

// readNewAddresses reads path starting at byte offset, calling add for
// every complete, non-blank line found, and returns the new offset to
// resume from (the start of the last, possibly incomplete, line).
func readNewAddresses(path string, offset int64, add func(string)) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if offset == 0 && os.IsNotExist(err) {
			return 0, nil
		}
		return offset, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}

	r := bufio.NewReader(f)
	pos := offset
	lastLineStart := offset
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			if strings.HasSuffix(line, "\n") {
				trimmed := strings.TrimSpace(line)
				if trimmed != "" {
					add(trimmed)
				}
				pos += int64(len(line))
				lastLineStart = pos
			}
		}
		if err != nil {
			break
		}
	}
	return lastLineStart, nil
}
