package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/voiceforth/internal/server"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the conversation webhook and slide poll server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			addr := a.cfg.Server.Address
			if serveAddr != "" {
				addr = serveAddr
			}

			srv := server.New(a.mux, a.mailbox, a.interp, server.Options{
				CORSOrigins:       a.cfg.Server.CORSOrigins,
				ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
				BodyLimit:         a.cfg.Server.BodyLimit,
				PollTimeout:       a.cfg.Slides.PollTimeout,
				Gatherer:          a.registry,
				Logger:            a.log,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Start(addr) })
			g.Go(func() error {
				<-gctx.Done()
				a.log.Info("shutting down", zap.Duration("timeout", a.cfg.Server.ShutdownTimeout))
				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			err = g.Wait()

			closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			return errors.Join(err, a.Close(closeCtx))
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")

	return serve
}
