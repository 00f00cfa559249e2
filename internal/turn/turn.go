// Package turn drives one line of input through the interpreter and shapes
// whatever it printed into display and spoken text.
//
// The interpreter never marks the end of a response. A turn clears the
// capture buffer, writes the line, waits a fixed settle delay and takes
// whatever accumulated. Output that arrives after the delay belongs to the
// next turn.
package turn

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/voiceforth/internal/interp"
	"github.com/mohammad-safakhou/voiceforth/internal/logging"
)

// ErrInterpreterUnavailable means the interpreter could not be started or
// written to during this turn.
var ErrInterpreterUnavailable = errors.New("interpreter unavailable")

// Ellipsis marks display text cut at the display limit.
const Ellipsis = "..."

// positionMarker matches interpreter file positions such as ":3:".
var positionMarker = regexp.MustCompile(`:[0-9]+:`)

// Interpreter is the part of the supervisor a turn needs.
type Interpreter interface {
	Running() bool
	Launch() error
	Write(line string) error
	Reset()
	Drain() string
}

// Options configures a Runner.
type Options struct {
	SettleDelay  time.Duration
	DisplayLimit int // runes; 0 disables the cap
	Logger       *zap.Logger
}

// Result is one completed turn.
type Result struct {
	Query   string
	Raw     string
	Display string
	Spoken  string
	// Truncated is set when Display was cut at the display limit.
	Truncated bool
}

// Runner executes turns against one interpreter. It does not serialize
// callers; the session multiplexer does.
type Runner struct {
	interp Interpreter
	settle time.Duration
	limit  int
	log    *zap.Logger
	sleep  func(time.Duration)
}

func NewRunner(i Interpreter, opts Options) *Runner {
	return &Runner{
		interp: i,
		settle: opts.SettleDelay,
		limit:  opts.DisplayLimit,
		log:    logging.OrNop(opts.Logger).Named("turn"),
		sleep:  time.Sleep,
	}
}

// Run writes q to the interpreter, starting it first if needed, and returns
// the shaped output. The settle wait is not cut short by ctx: once written,
// a line's output is always collected so it cannot leak into the next turn.
func (r *Runner) Run(ctx context.Context, q string) (Result, error) {
	if !r.interp.Running() {
		if err := r.launch(); err != nil {
			return Result{}, err
		}
	}

	r.interp.Reset()
	if err := r.interp.Write(q); err != nil {
		if !errors.Is(err, interp.ErrProcessNotRunning) {
			return Result{}, fmt.Errorf("%w: write: %v", ErrInterpreterUnavailable, err)
		}
		// Died between the check and the write.
		if err := r.launch(); err != nil {
			return Result{}, err
		}
		r.interp.Reset()
		if err := r.interp.Write(q); err != nil {
			return Result{}, fmt.Errorf("%w: write: %v", ErrInterpreterUnavailable, err)
		}
	}

	r.sleep(r.settle)
	raw := r.interp.Drain()
	res := Shape(q, raw, r.limit)
	r.log.Debug("turn captured",
		zap.Int("raw_bytes", len(raw)),
		zap.Bool("truncated", res.Truncated),
		zap.Bool("ctx_done", ctx.Err() != nil))
	return res, nil
}

func (r *Runner) launch() error {
	if err := r.interp.Launch(); err != nil {
		r.log.Error("interpreter launch failed", zap.Error(err))
		return fmt.Errorf("%w: launch: %v", ErrInterpreterUnavailable, err)
	}
	return nil
}

// Shape strips an echoed copy of q from the front of raw and derives the
// display text (capped at limit runes) and the spoken text (first line,
// position markers removed).
func Shape(q, raw string, limit int) Result {
	text := raw
	if q != "" && strings.HasPrefix(text, q) {
		text = text[len(q):]
	}
	display, truncated := capRunes(text, limit)
	return Result{
		Query:     q,
		Raw:       raw,
		Display:   display,
		Spoken:    spoken(text),
		Truncated: truncated,
	}
}

func spoken(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = positionMarker.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func capRunes(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	return string([]rune(s)[:limit]) + Ellipsis, true
}
