package console

import (
	"io"

	"golang.org/x/term"
)

// Width reports the column count of w when it is backed by a terminal.
func Width(w io.Writer) (int, bool) {
	type fdProvider interface {
		Fd() uintptr
	}
	if v, ok := w.(fdProvider); ok {
		if cols, _, err := term.GetSize(int(v.Fd())); err == nil {
			return cols, true
		}
	}
	return 0, false
}
