package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mohammad-safakhou/voiceforth/config"
	"github.com/mohammad-safakhou/voiceforth/internal/interp"
	"github.com/mohammad-safakhou/voiceforth/internal/logging"
	"github.com/mohammad-safakhou/voiceforth/internal/relay"
	"github.com/mohammad-safakhou/voiceforth/internal/session"
	"github.com/mohammad-safakhou/voiceforth/internal/slides"
	"github.com/mohammad-safakhou/voiceforth/internal/telemetry"
	"github.com/mohammad-safakhou/voiceforth/internal/turn"
)

// app is the component graph shared by the serve and console commands.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	interp   *interp.Supervisor
	mailbox  *slides.Mailbox
	mux      *session.Multiplexer
	rdb      *redis.Client
}

func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.General)
	if err != nil {
		return nil, err
	}
	secret, err := config.LoadSecret(cfg.Auth)
	if err != nil {
		return nil, err
	}
	sig, err := interp.ParseSignal(cfg.Interpreter.KillSignal)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.New(reg)

	a := &app{cfg: cfg, log: logger, registry: reg}

	a.interp = interp.NewSupervisor(interp.Options{
		Command:      cfg.Interpreter.Command,
		Args:         cfg.Interpreter.Args,
		PTY:          cfg.Interpreter.PTY,
		KillSignal:   sig,
		WriteTimeout: cfg.Interpreter.WriteTimeout,
		Logger:       logger,
		Metrics:      metrics,
	})

	var mirror slides.Mirror
	if cfg.Slides.Redis.Enabled() {
		a.rdb, err = relay.Conn(ctx, cfg.Slides.Redis)
		if err != nil {
			return nil, err
		}
		mirror = relay.NewRedisMirror(a.rdb, cfg.Slides.Redis.Channel, cfg.Slides.Redis.Timeout)
		logger.Info("mirroring slide commands to redis", zap.String("channel", cfg.Slides.Redis.Channel))
	}
	a.mailbox = slides.NewMailbox(slides.Options{Mirror: mirror, Metrics: metrics, Logger: logger})

	runner := turn.NewRunner(a.interp, turn.Options{
		SettleDelay:  cfg.Interpreter.SettleDelay,
		DisplayLimit: cfg.Turn.DisplayLimit,
		Logger:       logger,
	})

	a.mux, err = session.New(runner, a.interp, a.mailbox, session.Options{
		Secret:        secret,
		LockedToken:   cfg.Auth.LockedToken,
		AssistantName: cfg.Turn.AssistantName,
		Apology:       cfg.Turn.Apology,
		UnlockRate:    rate.Limit(cfg.Auth.UnlockRate / 60),
		UnlockBurst:   cfg.Auth.UnlockBurst,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		a.closeRedis()
		return nil, fmt.Errorf("session: %w", err)
	}
	return a, nil
}

// talkTo is the phrase that opens a conversation with the assistant.
func (a *app) talkTo() string { return "talk to " + a.cfg.Turn.AssistantName }

// Close terminates the interpreter and releases connections.
func (a *app) Close(ctx context.Context) error {
	err := a.interp.Stop(ctx)
	if err != nil {
		a.log.Warn("interpreter did not stop cleanly", zap.Error(err))
	}
	err = errors.Join(err, a.closeRedis())
	_ = a.log.Sync()
	return err
}

func (a *app) closeRedis() error {
	if a.rdb == nil {
		return nil
	}
	return a.rdb.Close()
}
