package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/shlex"
	"github.com/ruteri/bkps-admin/api/clients"
	"github.com/urfave/cli/v2"
)

const shellPrompt = "bkps> "

func shellCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "run commands one after another until exit, failures do not end the session",
		Action: func(cCtx *cli.Context) error {
			return runShell(cCtx.Context, rt.fork(clients.Recoverable))
		},
	}
}

// runShell reads command lines until exit, end of input or ctx cancellation.
func runShell(ctx context.Context, rt *runtime) error {
	defer fmt.Fprintln(rt.out, "Work finished.")

	for {
		line, err := rt.prompt.ask(ctx, shellPrompt)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}

		args, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(rt.out, "Error occurred: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			return nil
		}

		err = shellApp(rt).RunContext(ctx, append([]string{"bkps-admin"}, args...))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(rt.out, "Error occurred: %v\n", err)
		}
	}
}

// shellApp parses one shell line. It never exits the process.
func shellApp(rt *runtime) *cli.App {
	return &cli.App{
		Name:           "bkps-admin",
		HideVersion:    true,
		Writer:         rt.out,
		ErrWriter:      rt.out,
		Commands:       domainCommands(rt),
		ExitErrHandler: func(*cli.Context, error) {},
		Action: func(cCtx *cli.Context) error {
			if cCtx.NArg() > 0 {
				return fmt.Errorf("unknown command %q, type help for the command list", cCtx.Args().First())
			}
			return cli.ShowAppHelp(cCtx)
		},
	}
}
