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
	"testing"

	"github.com/launix-de/respd/buf"
)

func argStrings(t *testing.T, a *Args) []string {
	t.Helper()
	out := make([]string, a.Len())
	for i := range out {
		out[i] = string(a.At(i))
	}
	return out
}

func assertArgs(t *testing.T, a *Args, want ...string) {
	t.Helper()
	got := argStrings(t, a)
	if len(got) != len(want) {
		t.Fatalf("got %d args %q, want %d args %q", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arg %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRESPInlineCommandIsFullyConsumed(t *testing.T) {
	var a Args
	in := []byte("*3\r\n$3\r\nset\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")
	n, err := Parse(in, &a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(in) {
		t.Fatalf("consumed %d, want %d", n, len(in))
	}
	assertArgs(t, &a, "set", "foo", "bar")
}

func TestRESPFragmentedAcrossReads(t *testing.T) {
	full := []byte("*2\r\n$4\r\nPING\r\n$0\r\n\r\n")
	for split := 0; split <= len(full); split++ {
		var a Args
		n, err := Parse(full[:split], &a)
		if split < len(full) {
			if err != nil {
				t.Fatalf("split %d: unexpected error %v", split, err)
			}
			if n != 0 {
				t.Fatalf("split %d: got n=%d, want 0 (need more)", split, n)
			}
			continue
		}
		if err != nil {
			t.Fatalf("split %d: unexpected error %v", split, err)
		}
		if n != len(full) {
			t.Fatalf("split %d: consumed %d, want %d", split, n, len(full))
		}
		assertArgs(t, &a, "PING", "")
	}
}

func TestRESPTwoCommandsBackToBack(t *testing.T) {
	var a Args
	in := []byte("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nQUIT\r\n")
	n1, err := Parse(in, &a)
	if err != nil {
		t.Fatalf("first command: unexpected error %v", err)
	}
	assertArgs(t, &a, "PING")
	n2, err := Parse(in[n1:], &a)
	if err != nil {
		t.Fatalf("second command: unexpected error %v", err)
	}
	assertArgs(t, &a, "QUIT")
	if n1+n2 != len(in) {
		t.Fatalf("consumed %d+%d, want %d total", n1, n2, len(in))
	}
}

func TestRESPInvalidMultibulkLength(t *testing.T) {
	var a Args
	_, err := Parse([]byte("*-2\r\n"), &a)
	if err == nil || err.Message != "ERR Protocol error: invalid multibulk length" {
		t.Fatalf("got %v, want invalid multibulk length error", err)
	}
}

func TestRESPExpectedDollar(t *testing.T) {
	var a Args
	_, err := Parse([]byte("*1\r\n:5\r\n"), &a)
	if err == nil || err.Message != "ERR Protocol error: expected '$', got ':'" {
		t.Fatalf("got %v, want expected-dollar error", err)
	}
}

func TestRESPInvalidBulkLength(t *testing.T) {
	var a Args
	_, err := Parse([]byte("*1\r\n$-5\r\n"), &a)
	if err == nil || err.Message != "ERR Protocol error: invalid bulk length" {
		t.Fatalf("got %v, want invalid bulk length error", err)
	}
}

func TestRESPDoesNotValidateTrailingCRLFBytes(t *testing.T) {
	// The original trusts the declared bulk length and skips the two
	// trailing bytes unconditionally; garbage there is not an error.
	var a Args
	in := []byte("*1\r\n$3\r\nfooXY")
	n, err := Parse(in, &a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(in) {
		t.Fatalf("consumed %d, want %d", n, len(in))
	}
	assertArgs(t, &a, "foo")
}

func TestInlineSimpleCommand(t *testing.T) {
	var a Args
	n, err := Parse([]byte("set foo bar\n"), &a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len("set foo bar\n") {
		t.Fatalf("consumed %d, want %d", n, len("set foo bar\n"))
	}
	assertArgs(t, &a, "set", "foo", "bar")
}

func TestInlineTrailingCRLF(t *testing.T) {
	var a Args
	n, err := Parse([]byte("ping\r\n"), &a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len("ping\r\n") {
		t.Fatalf("consumed %d, want %d", n, len("ping\r\n"))
	}
	assertArgs(t, &a, "ping")
}

func TestInlineQuotedArgumentsWithEscapes(t *testing.T) {
	var a Args
	in := []byte("set foo \"bar\\nbaz\" 'qux quux'\n")
	n, err := Parse(in, &a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(in) {
		t.Fatalf("consumed %d, want %d", n, len(in))
	}
	assertArgs(t, &a, "set", "foo", "bar\nbaz", "qux quux")
}

func TestInlineUnbalancedQuoteIsFatal(t *testing.T) {
	var a Args
	_, err := Parse([]byte("set \"unterminated\n"), &a)
	if err == nil || err.Message != "ERR Protocol error: unbalanced quotes in request" {
		t.Fatalf("got %v, want unbalanced quotes error", err)
	}
}

func TestInlineQuoteMustBeFollowedByWhitespace(t *testing.T) {
	var a Args
	_, err := Parse([]byte("set \"foo\"bar\n"), &a)
	if err == nil || err.Message != "ERR Protocol error: unbalanced quotes in request" {
		t.Fatalf("got %v, want unbalanced quotes error", err)
	}
}

func TestInlineBlankLineProducesNoArgs(t *testing.T) {
	var a Args
	n, err := Parse([]byte("   \n"), &a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len("   \n") {
		t.Fatalf("consumed %d, want %d", n, len("   \n"))
	}
	if a.Len() != 0 {
		t.Fatalf("got %d args, want 0", a.Len())
	}
}

func TestInlineNeedsMoreDataUntilNewline(t *testing.T) {
	var a Args
	n, err := Parse([]byte("set foo"), &a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("got n=%d, want 0 (need more)", n)
	}
}

func TestQuitIsRecognizedCaseInsensitively(t *testing.T) {
	var a Args
	if _, err := Parse([]byte("QuIt\n"), &a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.EqualFold(0, "quit") {
		t.Fatalf("expected arg 0 to fold-equal %q", "quit")
	}
}

func TestWriteStatusSanitizesControlBytes(t *testing.T) {
	var b buf.Buffer
	WriteStatus(&b, "OK\r\ninjected")
	got := string(b.Bytes())
	want := "+OK  injected\r\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWriteErrorFraming(t *testing.T) {
	var b buf.Buffer
	WriteError(&b, "ERR unknown command 'frob'")
	if string(b.Bytes()) != "-ERR unknown command 'frob'\r\n" {
		t.Fatalf("got %q", b.Bytes())
	}
}

func TestWriteIntFraming(t *testing.T) {
	var b buf.Buffer
	WriteInt(&b, -42)
	if string(b.Bytes()) != ":-42\r\n" {
		t.Fatalf("got %q", b.Bytes())
	}
}

func TestWriteBulkFraming(t *testing.T) {
	var b buf.Buffer
	WriteBulk(&b, []byte("hello"))
	if string(b.Bytes()) != "$5\r\nhello\r\n" {
		t.Fatalf("got %q", b.Bytes())
	}
}

func TestWriteNullBulkFraming(t *testing.T) {
	var b buf.Buffer
	WriteNullBulk(&b)
	if string(b.Bytes()) != "$-1\r\n" {
		t.Fatalf("got %q", b.Bytes())
	}
}

func TestWriteArrayHeaderFraming(t *testing.T) {
	var b buf.Buffer
	WriteArrayHeader(&b, 2)
	WriteBulk(&b, []byte("a"))
	WriteBulk(&b, []byte("b"))
	if string(b.Bytes()) != "*2\r\n$1\r\na\r\n$1\r\nb\r\n" {
		t.Fatalf("got %q", b.Bytes())
	}
}
