package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"loggerctl/command"
	"loggerctl/config"
	"loggerctl/control"
	"loggerctl/logging"
	"loggerctl/metrics"
	"loggerctl/redis"
	"loggerctl/services"
)

func listCommands(stdout io.Writer) error {
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMMAND\tTOPIC\tARGS\tDESCRIPTION")
	for _, e := range command.Kinds() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Kind, e.Topic, strings.Join(e.Params, " "), e.Summary)
	}
	return w.Flush()
}

// buildArgs turns CLI positionals and --arg pairs into command arguments.
// edit-constants takes key=value positionals, which become one mapping.
func buildArgs(kind string, params, named []string) (command.Args, error) {
	args := command.Args{}
	if kind == "edit-constants" && len(params) > 0 {
		constants := make(map[string]any, len(params))
		for _, p := range params {
			key, value, ok := splitPair(p)
			if !ok {
				return args, &command.ValidationError{Command: kind, Field: p, Message: "expected name=value"}
			}
			constants[key] = value
		}
		args.Positional = []any{constants}
	} else {
		for _, p := range params {
			args.Positional = append(args.Positional, p)
		}
	}

	for _, n := range named {
		key, value, ok := splitPair(n)
		if !ok {
			return args, &command.ValidationError{Command: kind, Field: n, Message: "expected --arg key=value"}
		}
		args = args.With(key, value)
	}
	return args, nil
}

func sendCommand(kind string, params []string, opts *options, stdout, stderr io.Writer) error {
	if _, ok := command.Lookup(kind); !ok {
		return withExitCode(exitError, fmt.Errorf("%w %q, run \"loggerctl commands\" for the list", services.ErrUnknownCommand, kind))
	}
	args, err := buildArgs(kind, params, opts.named)
	if err != nil {
		return withExitCode(exitError, err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return withExitCode(exitError, err)
	}
	logger := logging.New(stderr, firstNonEmpty(opts.logLevel, cfg.LogLevel), firstNonEmpty(opts.logFormat, logging.FormatText))

	var timeout time.Duration
	if opts.timeout != "" {
		timeout, err = time.ParseDuration(opts.timeout)
		if err != nil || timeout <= 0 {
			return withExitCode(exitError, fmt.Errorf("invalid --timeout %q", opts.timeout))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var svcOpts []services.ServiceOption
	if cfg.RedisEnabled() {
		store, err := redis.NewLeaseStore(ctx, cfg, logger)
		if err != nil {
			return withExitCode(exitError, err)
		}
		defer store.Close()
		svcOpts = append(svcOpts, services.WithLeaseStore(services.RedisLeases(store)))
	}
	metrics.Init()
	svc := services.NewControlService(cfg, logger, svcOpts...)

	resp, err := svc.Execute(ctx, services.CommandRequest{
		Kind:           kind,
		Serial:         opts.serial,
		Model:          opts.model,
		Args:           args,
		Timeout:        timeout,
		ResponseSuffix: opts.suffix,
	})
	if err != nil {
		return withExitCode(exitCodeFor(nil, err), err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return withExitCode(exitError, err)
	}
	if code := exitCodeFor(resp, nil); code != exitSuccess {
		return withExitCode(code, fmt.Errorf("logger reported a failure: %s", resp.Error))
	}
	return nil
}

func exitCodeFor(resp *command.Response, err error) int {
	switch {
	case err == nil && resp != nil && resp.Success:
		return exitSuccess
	case err == nil:
		return exitFailure
	case errors.Is(err, control.ErrNoResponse):
		return exitTimeout
	default:
		return exitError
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
