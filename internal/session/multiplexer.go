// Package session gates the shared interpreter behind a passphrase and
// routes each conversational turn to a control action or to the
// interpreter.
//
// There is one interpreter for the whole process. Every caller holding the
// passphrase talks to the same instance; turns that write to it run one at
// a time.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mohammad-safakhou/voiceforth/internal/logging"
	"github.com/mohammad-safakhou/voiceforth/internal/normalize"
	"github.com/mohammad-safakhou/voiceforth/internal/slides"
	"github.com/mohammad-safakhou/voiceforth/internal/telemetry"
	"github.com/mohammad-safakhou/voiceforth/internal/turn"
)

// ErrAuthenticationPending marks a turn from a caller without the
// passphrase. Handle turns it into a password prompt.
var ErrAuthenticationPending = errors.New("authentication pending")

// Reply texts.
const (
	TextOK           = "ok"
	TextPassword     = "What's the password?"
	TextSignedOut    = "Ok. What's the password?"
	TextTooManyTries = "Too many wrong passwords. Goodbye."
	DefaultApology   = "Sorry, the interpreter is not available right now."
	DefaultAssistant = "voice forth"
)

var sessionTracer = otel.Tracer("voiceforth/session")

// Request is one incoming turn.
type Request struct {
	Token     string
	Utterance string
	// Caller keys the wrong-guess budget, e.g. a conversation id or a
	// remote address.
	Caller string
}

// Reply is what the front end renders. Token must be echoed back on the
// caller's next turn.
type Reply struct {
	Token              string
	Display            string
	Speech             string
	ExpectUserResponse bool
}

// Runner executes one interpreter turn.
type Runner interface {
	Run(ctx context.Context, q string) (turn.Result, error)
}

// Launcher starts or replaces the interpreter.
type Launcher interface {
	Running() bool
	Launch() error
}

// Poster receives slide commands.
type Poster interface {
	Post(ctx context.Context, cmd string)
}

// Options configures a Multiplexer.
type Options struct {
	Secret        string
	LockedToken   string
	AssistantName string
	Apology       string
	// UnlockRate and UnlockBurst budget wrong passphrases per caller. A
	// caller over budget has its conversation closed. Zero disables it.
	UnlockRate  rate.Limit
	UnlockBurst int
	Logger      *zap.Logger
	Metrics     *telemetry.Metrics
}

// Multiplexer authenticates turns and serializes access to the interpreter.
type Multiplexer struct {
	runner   Runner
	launcher Launcher
	slides   Poster

	secret      []byte
	lowerSecret []byte
	locked      string
	talkTo      string
	apology     string
	guesses     *guessLimiter
	log         *zap.Logger
	metrics     *telemetry.Metrics

	// slot is the single active-turn guard.
	slot chan struct{}
}

// New builds a Multiplexer. The secret must be non-empty and differ from
// the locked token.
func New(runner Runner, launcher Launcher, poster Poster, opts Options) (*Multiplexer, error) {
	if opts.Secret == "" {
		return nil, errors.New("session: empty secret")
	}
	if opts.LockedToken == "" {
		opts.LockedToken = "x"
	}
	if opts.Secret == opts.LockedToken {
		return nil, errors.New("session: secret equals the locked token")
	}
	if opts.AssistantName == "" {
		opts.AssistantName = DefaultAssistant
	}
	if opts.Apology == "" {
		opts.Apology = DefaultApology
	}
	return &Multiplexer{
		runner:      runner,
		launcher:    launcher,
		slides:      poster,
		secret:      []byte(opts.Secret),
		lowerSecret: []byte(strings.ToLower(opts.Secret)),
		locked:      opts.LockedToken,
		talkTo:      "talk to " + strings.ToLower(strings.TrimSpace(opts.AssistantName)),
		apology:     opts.Apology,
		guesses:     newGuessLimiter(opts.UnlockRate, opts.UnlockBurst),
		log:         logging.OrNop(opts.Logger).Named("session"),
		metrics:     opts.Metrics,
		slot:        make(chan struct{}, 1),
	}, nil
}

// LockedToken is the token locked callers carry.
func (m *Multiplexer) LockedToken() string { return m.locked }

// Handle answers one turn. The only error is ctx ending while the turn
// waits for the interpreter; the reply is then meaningless.
func (m *Multiplexer) Handle(ctx context.Context, req Request) (Reply, error) {
	turnID := uuid.NewString()
	log := m.log.With(zap.String("turn_id", turnID))

	if err := m.authenticate(req.Token); err != nil {
		return m.unlock(log, req), nil
	}

	q := normalize.Normalize(req.Utterance)
	log.Debug("turn", zap.String("utterance", req.Utterance), zap.String("query", q))

	action := classify(req.Utterance, q, m.talkTo)
	switch action.kind {
	case controlSignOut:
		m.metrics.Turn(telemetry.OutcomeControl)
		log.Info("signed out")
		return m.reply(m.locked, TextSignedOut), nil
	case controlTalkTo:
		m.metrics.Turn(telemetry.OutcomeControl)
		if err := m.ensureRunning(ctx, log); err != nil {
			return Reply{}, err
		}
		return m.reply(req.Token, TextOK), nil
	case controlRestart:
		m.metrics.Turn(telemetry.OutcomeControl)
		if err := m.relaunch(ctx, log); err != nil {
			if ctx.Err() != nil {
				return Reply{}, err
			}
			return m.reply(req.Token, m.apology), nil
		}
		return m.reply(req.Token, TextOK), nil
	case controlPrevious, controlNext, controlGoTo:
		m.metrics.Turn(telemetry.OutcomeControl)
		m.slides.Post(ctx, action.command())
		return m.reply(req.Token, TextOK), nil
	}

	return m.interpret(ctx, log, req, q)
}

func (m *Multiplexer) authenticate(token string) error {
	if subtle.ConstantTimeCompare([]byte(token), m.secret) != 1 {
		return ErrAuthenticationPending
	}
	return nil
}

// unlock handles a turn from a locked caller: a correct passphrase hands
// back the secret as the new token, anything else prompts again. Only wrong
// guesses count against the caller's budget.
func (m *Multiplexer) unlock(log *zap.Logger, req Request) Reply {
	guess := []byte(strings.ToLower(strings.TrimSpace(req.Utterance)))
	if subtle.ConstantTimeCompare(guess, m.lowerSecret) == 1 {
		m.metrics.Turn(telemetry.OutcomeUnlocked)
		log.Info("unlocked")
		return m.reply(string(m.secret), TextOK)
	}
	if !m.guesses.wrongGuess(req.Caller) {
		m.metrics.Turn(telemetry.OutcomeThrottled)
		log.Warn("too many wrong passwords", zap.String("caller", req.Caller))
		return Reply{Token: m.locked, Display: TextTooManyTries, Speech: TextTooManyTries}
	}
	m.metrics.Turn(telemetry.OutcomeLocked)
	return m.reply(m.locked, TextPassword)
}

func (m *Multiplexer) interpret(ctx context.Context, log *zap.Logger, req Request, q string) (Reply, error) {
	ctx, span := sessionTracer.Start(ctx, "Multiplexer.interpret")
	defer span.End()
	span.SetAttributes(attribute.Int("query_length", len(q)))

	if err := m.acquire(ctx); err != nil {
		m.metrics.Turn(telemetry.OutcomeAbandoned)
		span.SetStatus(codes.Error, "abandoned")
		return Reply{}, err
	}
	defer m.release()

	m.slides.Post(ctx, slides.Input(req.Utterance))
	start := time.Now()
	res, err := m.runner.Run(ctx, q)
	m.metrics.TurnTook(time.Since(start))
	if err != nil {
		m.metrics.Turn(telemetry.OutcomeUnavailable)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("interpreter turn failed", zap.Error(err))
		return m.reply(req.Token, m.apology), nil
	}
	m.metrics.Turn(telemetry.OutcomeInterpreted)
	m.slides.Post(ctx, slides.Output(res.Display))
	span.SetAttributes(attribute.Int("output_length", len(res.Raw)), attribute.Bool("truncated", res.Truncated))

	return Reply{
		Token:              req.Token,
		Display:            res.Display,
		Speech:             res.Spoken,
		ExpectUserResponse: true,
	}, nil
}

// ensureRunning starts the interpreter if it is not running. A failed
// launch is logged; the next interpreter turn retries it.
func (m *Multiplexer) ensureRunning(ctx context.Context, log *zap.Logger) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	if m.launcher.Running() {
		return nil
	}
	if err := m.launcher.Launch(); err != nil {
		log.Warn("interpreter launch failed", zap.Error(err))
	}
	return nil
}

func (m *Multiplexer) relaunch(ctx context.Context, log *zap.Logger) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	if err := m.launcher.Launch(); err != nil {
		log.Error("interpreter relaunch failed", zap.Error(err))
		return fmt.Errorf("relaunch: %w", err)
	}
	log.Info("interpreter relaunched")
	return nil
}

func (m *Multiplexer) acquire(ctx context.Context) error {
	select {
	case m.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Multiplexer) release() { <-m.slot }

func (m *Multiplexer) reply(token, text string) Reply {
	return Reply{Token: token, Display: text, Speech: text, ExpectUserResponse: true}
}
