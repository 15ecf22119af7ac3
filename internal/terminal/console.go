package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sakashimaa/vani-inventory/internal/gate"
	"github.com/sakashimaa/vani-inventory/internal/workflow"
	"golang.org/x/term"
)

type readRequest struct {
	secret bool
	reply  chan string
}

// Console reads input on its own goroutine, one line per request, so that
// waits can be abandoned when ctx ends and nothing is read ahead of a
// hidden passcode prompt. Writes happen on the caller's goroutine.
type Console struct {
	in       io.Reader
	out      io.Writer
	password func() ([]byte, error)
	requests chan readRequest
	stopped  chan struct{}
}

type ConsoleOption func(*Console)

// WithPasswordReader replaces how hidden input is read. By default input
// from a terminal is read with echo off and anything else is read as a
// plain line.
func WithPasswordReader(read func() ([]byte, error)) ConsoleOption {
	return func(c *Console) {
		c.password = read
	}
}

func NewConsole(in io.Reader, out io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{
		in:       in,
		out:      out,
		requests: make(chan readRequest),
		stopped:  make(chan struct{}),
	}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		c.password = func() ([]byte, error) {
			return term.ReadPassword(fd)
		}
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start begins serving reads until ctx ends or input runs out.
func (c *Console) Start(ctx context.Context) {
	go func() {
		defer close(c.stopped)

		reader := bufio.NewReader(c.in)
		for {
			var req readRequest
			select {
			case req = <-c.requests:
			case <-ctx.Done():
				return
			}

			line, err := c.read(reader, req.secret)
			if err != nil {
				close(req.reply)
				return
			}

			req.reply <- line
			close(req.reply)
		}
	}()
}

func (c *Console) read(reader *bufio.Reader, secret bool) (string, error) {
	if secret && c.password != nil {
		b, err := c.password()
		// Echo is off, so the newline the user typed was not shown.
		_, _ = fmt.Fprintln(c.out)
		return string(b), err
	}

	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// Next requests the next line. The returned channel yields it once, or is
// closed without a value at end of input. Callers keep the channel until it
// delivers rather than asking again.
func (c *Console) Next() <-chan string {
	return c.request(false)
}

func (c *Console) request(secret bool) <-chan string {
	reply := make(chan string, 1)

	select {
	case c.requests <- readRequest{secret: secret, reply: reply}:
	case <-c.stopped:
		close(reply)
	}

	return reply
}

func (c *Console) ReadLine(ctx context.Context) (string, error) {
	return c.wait(ctx, c.Next())
}

func (c *Console) wait(ctx context.Context, reply <-chan string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-reply:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	}
}

func (c *Console) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// Confirm asks a yes/no question. Only "y" or "yes" confirms.
func (c *Console) Confirm(ctx context.Context, prompt workflow.Prompt) (bool, error) {
	c.Printf("%s\n%s [%s: y/N] ", prompt.Title, prompt.Message, prompt.Confirm)

	line, err := c.ReadLine(ctx)
	if err != nil {
		return false, err
	}

	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Passcode reads the passcode for the gate's challenge without echoing it
// when input is a terminal.
func (c *Console) Passcode(ctx context.Context, prompt gate.ChallengePrompt) (string, error) {
	c.Printf("%s (%s): ", prompt.Message, prompt.FallbackLabel)
	return c.wait(ctx, c.request(true))
}
