package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mohammad-safakhou/voiceforth/internal/console"
)

func consoleCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Talk to the interpreter from the terminal instead of a voice assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.Close(stopCtx)
			}()

			var in console.LineReader
			var out io.Writer = os.Stdout
			fd := int(os.Stdin.Fd())
			if term.IsTerminal(fd) {
				state, err := term.MakeRaw(fd)
				if err != nil {
					return err
				}
				defer term.Restore(fd, state)
				t := term.NewTerminal(struct {
					io.Reader
					io.Writer
				}{os.Stdin, os.Stdout}, console.Prompt)
				in, out = t, t
			} else {
				in = console.NewPromptReader(os.Stdin, os.Stdout, console.Prompt)
			}

			c := console.New(a.mux, in, out, console.Options{
				LockedToken: a.mux.LockedToken(),
				Opening:     a.talkTo(),
				Logger:      a.log,
			})
			return c.Run(ctx)
		},
	}
}
