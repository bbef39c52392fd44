package reply

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Confirmer asks the operator to approve an irreversible step
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// TerminalConfirmer reads y/n answers from a single reader goroutine, so
// a prompt abandoned on cancellation never leaves a second reader behind.
// It is not safe for concurrent use.
type TerminalConfirmer struct {
	in  *bufio.Reader
	out io.Writer

	start   sync.Once
	req     chan struct{}
	lines   chan answerLine
	pending bool // a read for an abandoned prompt is still outstanding
	closed  bool // input is exhausted
}

type answerLine struct {
	text string
	err  error
}

// NewTerminalConfirmer returns a Confirmer prompting on out and reading in
func NewTerminalConfirmer(in io.Reader, out io.Writer) *TerminalConfirmer {
	return &TerminalConfirmer{
		in:    bufio.NewReader(in),
		out:   out,
		req:   make(chan struct{}, 1),
		lines: make(chan answerLine, 1),
	}
}

// read serves one line per request until the input fails
func (t *TerminalConfirmer) read() {
	for range t.req {
		text, err := t.in.ReadString('\n')
		t.lines <- answerLine{text, err}
		if err != nil {
			return
		}
	}
}

// Confirm blocks until a line is read. Only "y" and "yes" approve. When a
// previous prompt was cancelled, its outstanding read answers this one.
func (t *TerminalConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(t.out, "%s [y/N] ", prompt)
	if t.closed {
		fmt.Fprintln(t.out)
		return false, nil
	}

	t.start.Do(func() { go t.read() })
	if !t.pending {
		t.req <- struct{}{}
		t.pending = true
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case l := <-t.lines:
		t.pending = false
		if l.err != nil {
			t.closed = true
			if l.text == "" {
				if l.err == io.EOF {
					return false, nil
				}
				return false, l.err
			}
		}
		answer := strings.ToLower(strings.TrimSpace(l.text))
		return answer == "y" || answer == "yes", nil
	}
}

// Decline answers no to every prompt. Used for dry runs.
type Decline struct{}

func (Decline) Confirm(context.Context, string) (bool, error) { return false, nil }
