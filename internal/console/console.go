// Package console drives the session multiplexer from a terminal, one line
// per turn, without going through the HTTP webhook.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/voiceforth/internal/logging"
	"github.com/mohammad-safakhou/voiceforth/internal/session"
)

// Prompt is printed before every line read.
const Prompt = "> "

// QuitWord ends the console session.
const QuitWord = "cancel"

// LineReader yields one line of input per call. *term.Terminal satisfies
// it.
type LineReader interface {
	ReadLine() (string, error)
}

// Handler answers one turn.
type Handler interface {
	Handle(ctx context.Context, req session.Request) (session.Reply, error)
}

// Options configures a Console.
type Options struct {
	// LockedToken is the token the console starts with.
	LockedToken string
	// Opening is sent as the first turn before any input is read.
	Opening string
	Logger  *zap.Logger
}

type Console struct {
	handler Handler
	in      LineReader
	out     io.Writer
	token   string
	opening string
	log     *zap.Logger
}

func New(h Handler, in LineReader, out io.Writer, opts Options) *Console {
	token := opts.LockedToken
	if token == "" {
		token = "x"
	}
	return &Console{
		handler: h,
		in:      in,
		out:     out,
		token:   token,
		opening: opts.Opening,
		log:     logging.OrNop(opts.Logger).Named("console"),
	}
}

// Run sends the opening turn, then alternates reading a line and printing
// the spoken reply. It returns nil on the quit word or end of input.
func (c *Console) Run(ctx context.Context) error {
	if c.opening != "" {
		if err := c.round(ctx, c.opening); err != nil {
			return err
		}
	}
	for {
		line, err := c.in.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.log.Debug("console closed", zap.String("reason", "eof"))
				return nil
			}
			return fmt.Errorf("read line: %w", err)
		}
		if line == QuitWord {
			c.log.Debug("console closed", zap.String("reason", QuitWord))
			return nil
		}
		if err := c.round(ctx, line); err != nil {
			return err
		}
	}
}

func (c *Console) round(ctx context.Context, utterance string) error {
	reply, err := c.handler.Handle(ctx, session.Request{Token: c.token, Utterance: utterance})
	if err != nil {
		return err
	}
	c.token = reply.Token
	if _, err := fmt.Fprintln(c.out, reply.Speech); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

// Token is the token the next turn will carry.
func (c *Console) Token() string { return c.token }

// promptReader is the LineReader for input that is not a terminal.
type promptReader struct {
	scanner *bufio.Scanner
	out     io.Writer
	prompt  string
}

// NewPromptReader reads lines from r, printing prompt to w before each.
func NewPromptReader(r io.Reader, w io.Writer, prompt string) LineReader {
	return &promptReader{scanner: bufio.NewScanner(r), out: w, prompt: prompt}
}

func (p *promptReader) ReadLine() (string, error) {
	if _, err := io.WriteString(p.out, p.prompt); err != nil {
		return "", err
	}
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(p.scanner.Text(), "\r"), nil
}
