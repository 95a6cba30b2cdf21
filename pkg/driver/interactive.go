package driver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"llmdialog/pkg/dialog"
)

// Commands that end an interactive session.
const (
	CommandQuit = "/quit"
	CommandExit = "/exit"
)

// Interactive reads one user message per line. It prints the latest assistant reply
// before prompting. End of input or /quit ends the exchange and blank lines are
// skipped. Lines are read on a background goroutine so that Next returns as soon
// as ctx is canceled; a line typed after that is delivered to the following call.
type Interactive struct {
	in         *bufio.Reader
	out        io.Writer
	showPrompt bool
	shown      int // history length whose last reply was already printed

	startOnce sync.Once
	lines     chan inputLine
}

type inputLine struct {
	text string
	err  error
}

var _ dialog.Driver = (*Interactive)(nil)

// NewInteractive reads from in and writes replies and prompts to out.
func NewInteractive(in io.Reader, out io.Writer, showPrompt bool) *Interactive {
	return &Interactive{
		in:         bufio.NewReader(in),
		out:        out,
		showPrompt: showPrompt,
		lines:      make(chan inputLine, 1),
	}
}

// NewTerminal is NewInteractive on a file, showing the prompt only when f is a terminal.
func NewTerminal(f *os.File, out io.Writer) *Interactive {
	return NewInteractive(f, out, term.IsTerminal(int(f.Fd())))
}

// readLines runs until the first read error, which it forwards before closing the channel.
func (d *Interactive) readLines() {
	defer close(d.lines)
	for {
		text, err := d.in.ReadString('\n')
		d.lines <- inputLine{text: text, err: err}
		if err != nil {
			return
		}
	}
}

// Next implements dialog.Driver.
func (d *Interactive) Next(ctx context.Context, history []dialog.Message) dialog.Outcome {
	if n := len(history); n > d.shown && history[n-1].Role == dialog.RoleAssistant {
		fmt.Fprintf(d.out, "%s\n\n", history[n-1].Content)
		d.shown = n
	}
	d.startOnce.Do(func() { go d.readLines() })

	for {
		if d.showPrompt {
			fmt.Fprint(d.out, "> ")
		}

		var line inputLine
		var ok bool
		select {
		case <-ctx.Done():
			return dialog.Failf(dialog.Unrecoverable, "input aborted: %v", ctx.Err())
		case line, ok = <-d.lines:
		}
		if !ok {
			return dialog.Done()
		}
		if line.err != nil && !errors.Is(line.err, io.EOF) {
			return dialog.Failf(dialog.Unrecoverable, "read input: %v", line.err)
		}

		text := strings.TrimSpace(line.text)
		switch {
		case text == CommandQuit || text == CommandExit:
			return dialog.Done()
		case text != "":
			return dialog.Say(text)
		case line.err != nil:
			return dialog.Done()
		}
	}
}
