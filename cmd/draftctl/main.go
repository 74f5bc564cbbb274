// Command draftctl drives a form draft from the terminal the way the web form
// does: drafts are kept in a local SQLite file and synced with the server when
// a user is signed in.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := &rootConfig{}
	root := newRootCommand(cfg)
	if err := root.ParseAndRun(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "draftctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(cfg *rootConfig) *ffcli.Command {
	fs := flag.NewFlagSet("draftctl", flag.ExitOnError)
	cfg.register(fs)

	return &ffcli.Command{
		Name:       "draftctl",
		ShortUsage: "draftctl [flags] <subcommand> [args...]",
		FlagSet:    fs,
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ff.JSONParser),
			ff.WithEnvVarPrefix("DRAFTCTL"),
		},
		Subcommands: []*ffcli.Command{
			loadCommand(cfg),
			setCommand(cfg),
			saveCommand(cfg),
			discardCommand(cfg),
			showCommand(cfg),
			convertCommand(cfg),
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}
}
