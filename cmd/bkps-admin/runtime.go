package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/ruteri/bkps-admin/api/clients"
	"github.com/ruteri/bkps-admin/cmd/flags"
	"github.com/ruteri/bkps-admin/configuration"
	"github.com/ruteri/bkps-admin/interfaces"
	"github.com/ruteri/bkps-admin/storage"
	"github.com/urfave/cli/v2"
)

const rebootNotice = `---------------------------------------------------------------------
Before next successful invocation please wait for service to reboot
---------------------------------------------------------------------`

// runtime carries what every command needs: the client for the active
// failure mode, the artifact stores and the operator's terminal.
type runtime struct {
	out    io.Writer
	prompt *prompter
	log    *slog.Logger

	cfg         flags.RunnerConfig
	interactive bool

	client    *clients.BKPSClient
	artifacts interfaces.ArtifactStoreFactory
}

func newRuntime(in io.Reader, out io.Writer) *runtime {
	return &runtime{
		out:    out,
		prompt: newPrompter(in, out),
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// configure builds the transport and client. Shell sessions use the
// Recoverable mode, one-shot commands FinishOnError.
func (rt *runtime) configure(cfg flags.RunnerConfig, mode clients.FailureMode, log *slog.Logger) {
	rt.cfg = cfg
	rt.log = log
	rt.interactive = mode == clients.Recoverable
	rt.client = clients.NewBKPSClient(flags.BuildTransport(cfg, mode, rt.out, log))
	rt.artifacts = storage.NewArtifactStoreFactory(log, storage.VaultOpts{})
}

// fork returns a runtime sharing the terminal and config with another mode.
func (rt *runtime) fork(mode clients.FailureMode) *runtime {
	child := &runtime{out: rt.out, prompt: rt.prompt}
	child.configure(rt.cfg, mode, rt.log)
	return child
}

// action adapts a command body. One-shot commands turn errors into a
// non-zero exit; the shell gets the raw error and keeps going.
func (rt *runtime) action(fn func(ctx context.Context, cCtx *cli.Context) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		err := fn(cCtx.Context, cCtx)
		if err == nil || rt.interactive {
			return err
		}
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(rt.out, "Work finished.")
			return nil
		}
		// The response status was already printed.
		var se *interfaces.ServiceError
		if errors.As(err, &se) {
			return cli.Exit("", 1)
		}
		return cli.Exit(fmt.Sprintf("Error occurred: %v", err), 1)
	}
}

// readInput fetches an input document and trims surrounding whitespace.
func (rt *runtime) readInput(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, interfaces.NewValidationError("input", "input file is required")
	}
	store, err := rt.artifacts.ArtifactFor(interfaces.ArtifactLocation(location))
	if err != nil {
		return nil, interfaces.NewValidationError("input", "%v", err)
	}
	data, err := store.Fetch(ctx)
	if errors.Is(err, interfaces.ErrContentNotFound) {
		return nil, &interfaces.PrecursorError{Resource: store.LocationURI(), Err: interfaces.ErrFileNotFound}
	}
	if err != nil {
		return nil, &interfaces.PrecursorError{Resource: store.LocationURI(), Err: err}
	}
	return bytes.TrimSpace(data), nil
}

// saveOutput stores data when an output location was given and a result
// was returned.
func (rt *runtime) saveOutput(ctx context.Context, location string, data []byte) error {
	if location == "" || data == nil {
		return nil
	}
	store, err := rt.artifacts.ArtifactFor(interfaces.ArtifactLocation(location))
	if err != nil {
		return interfaces.NewValidationError("output", "%v", err)
	}
	if err := store.Store(ctx, data); err != nil {
		return fmt.Errorf("failed to save output: %w", err)
	}
	fmt.Fprintf(rt.out, "\nSaved output to file: %s\n", store.LocationURI())
	return nil
}

func (rt *runtime) printRebootNotice() {
	fmt.Fprintln(rt.out, rebootNotice)
}

// promptDraft asks every applicable configuration field until it is valid.
func (rt *runtime) promptDraft(ctx context.Context) (*configuration.Draft, error) {
	d := configuration.NewDraft()
	for _, f := range configuration.InteractiveFields() {
		if !f.Applies(d) {
			continue
		}
		for {
			answer, err := rt.prompt.ask(ctx, f.Label+": ")
			if err != nil {
				return nil, err
			}
			err = f.Apply(d, answer)
			if err == nil {
				break
			}
			var ve *interfaces.ValidationError
			if !errors.As(err, &ve) {
				return nil, err
			}
			fmt.Fprintf(rt.out, "Invalid value: %s\n", ve.Reason)
		}
	}
	return d, nil
}

// buildConfiguration produces a submission body from --json or --interactive input.
func (rt *runtime) buildConfiguration(ctx context.Context, cCtx *cli.Context) ([]byte, error) {
	var (
		draft *configuration.Draft
		err   error
	)
	switch {
	case cCtx.Bool("json"):
		var raw []byte
		raw, err = rt.readInput(ctx, cCtx.String("input"))
		if err != nil {
			return nil, err
		}
		draft, err = configuration.ParseDraftJSON(raw)
	case cCtx.Bool("interactive"):
		draft, err = rt.promptDraft(ctx)
	default:
		return nil, interfaces.NewValidationError("mode", "use --interactive or --json with --input")
	}
	if err != nil {
		return nil, err
	}

	doc, err := draft.Verify()
	if err != nil {
		return nil, err
	}

	assembler := configuration.NewAssembler(rt.client, configuration.AssemblerOpts{Debug: rt.cfg.Debug, Log: rt.log})
	return assembler.Assemble(ctx, doc)
}

// prompter reads operator answers line by line. Reading starts on first use
// so commands that never prompt leave the input untouched.
type prompter struct {
	in       io.Reader
	out      io.Writer
	once     sync.Once
	stopOnce sync.Once
	lines    chan string
	done     chan struct{}
	finished chan struct{}
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{
		in:       in,
		out:      out,
		lines:    make(chan string),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (p *prompter) start() {
	go func() {
		defer close(p.finished)
		defer close(p.lines)

		scanner := bufio.NewScanner(p.in)
		for scanner.Scan() {
			select {
			case p.lines <- scanner.Text():
			case <-p.done:
				return
			}
		}
	}()
}

// stop releases the reader goroutine. A reader blocked on input returns once
// the next line arrives or the input closes. Later asks return io.EOF.
func (p *prompter) stop() {
	p.stopOnce.Do(func() { close(p.done) })
}

// ask prints label and waits for one line. It returns io.EOF when the input
// ends or the prompter is stopped and ctx.Err() when ctx is cancelled.
func (p *prompter) ask(ctx context.Context, label string) (string, error) {
	select {
	case <-p.done:
		return "", io.EOF
	default:
	}

	p.once.Do(p.start)
	fmt.Fprint(p.out, label)

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	case <-p.done:
		fmt.Fprintln(p.out)
		return "", io.EOF
	case line, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	}
}
