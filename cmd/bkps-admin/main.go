package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/bkps-admin/api/clients"
	"github.com/ruteri/bkps-admin/cmd/flags"
	"github.com/ruteri/bkps-admin/common"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(newRuntime(os.Stdin, os.Stdout))
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(rt *runtime) *cli.App {
	return &cli.App{
		Name:           "bkps-admin",
		Usage:          "administer a BKPS key provisioning service",
		Version:        common.Version,
		Writer:         rt.out,
		Flags:          flags.AllFlags(),
		DefaultCommand: "shell",
		Before: func(cCtx *cli.Context) error {
			if err := flags.LoadRunnerConfig(cCtx); err != nil {
				return cli.Exit(fmt.Sprintf("Error occurred: %v", err), 1)
			}

			log := flags.SetupLogger(cCtx)
			cfg := flags.ReadRunnerConfig(cCtx)
			log.Debug("runner configuration", "config", cfg)

			rt.configure(cfg, clients.FinishOnError, log)
			return nil
		},
		After: func(*cli.Context) error {
			rt.prompt.stop()
			return nil
		},
		Commands: append(domainCommands(rt), shellCommand(rt)),
	}
}
