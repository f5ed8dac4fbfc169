// loggerctl sends commands to data loggers over MQTT and waits for their
// replies.
//
// Usage:
//
//	loggerctl [flags] <command> [args...]
//	loggerctl build-settings --out mqtt.bin --broker test.mosquitto.org
//	loggerctl serve [--addr :8080]
//
// Run "loggerctl commands" for the list of logger commands.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// Exit codes.
const (
	exitSuccess = 0
	exitFailure = 1 // the logger answered with an error
	exitTimeout = 2 // the logger never answered
	exitError   = 3 // the command could not be sent or was malformed
)

// exitCodeError carries the process exit code for an error.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }
func (e *exitCodeError) ExitCode() int { return e.code }

func withExitCode(code int, err error) error {
	return &exitCodeError{code: code, err: err}
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		code := exitError
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			code = coder.ExitCode()
		}
		if code != exitFailure {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(code)
	}
}

// options holds every flag. Subcommands read the subset they need.
type options struct {
	configPath string
	serial     string
	model      string
	timeout    string
	named      []string
	suffix     string
	logLevel   string
	logFormat  string

	// build-settings
	out    string
	broker string
	fields []string
	header uint16

	// serve
	addr string
}

func newFlagSet(opts *options, stderr io.Writer) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("loggerctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file")
	flagSet.StringVarP(&opts.serial, "serial", "s", "", "serial number of the logger")
	flagSet.StringVar(&opts.model, "model", "", "logger model (default from config, then cr1000x)")
	flagSet.StringVarP(&opts.timeout, "timeout", "t", "", "how long to wait for a reply, e.g. 30s (default from config)")
	flagSet.StringArrayVarP(&opts.named, "arg", "a", nil, "named argument as key=value (repeatable)")
	flagSet.StringVar(&opts.suffix, "response-suffix", "", "listen on {response topic}/{suffix}")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (default from config)")
	flagSet.StringVar(&opts.logFormat, "log-format", "", "json or text (default text, json for serve)")
	flagSet.StringVarP(&opts.out, "out", "o", "mqtt.bin", "build-settings: output file")
	flagSet.StringVar(&opts.broker, "broker", "", "build-settings: broker endpoint field")
	flagSet.StringArrayVar(&opts.fields, "field", nil, "build-settings: raw field as id=value, id in decimal or 0x hex (repeatable)")
	flagSet.Uint16Var(&opts.header, "header", 0x0020, "build-settings: header tag")
	flagSet.StringVar(&opts.addr, "addr", "", "serve: listen address (default from config)")
	flagSet.BoolP("help", "h", false, "show help")
	return flagSet
}

func run(args []string, stdout, stderr io.Writer) error {
	var opts options
	flagSet := newFlagSet(&opts, stderr)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet, stderr)
			return nil
		}
		return withExitCode(exitError, err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet, stderr)
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(flagSet, stderr)
		return withExitCode(exitError, errors.New("missing command"))
	}

	switch name, params := rest[0], rest[1:]; name {
	case "commands":
		return listCommands(stdout)
	case "build-settings":
		return buildSettings(&opts, stdout)
	case "serve":
		return serve(&opts, stderr)
	default:
		return sendCommand(name, params, &opts, stdout, stderr)
	}
}

func printHelp(flagSet *pflag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `loggerctl sends commands to data loggers over MQTT.

Usage:
  loggerctl [flags] <command> [args...]

Commands:
  commands          list logger commands and their arguments
  build-settings    write a binary MQTT settings file
  serve             run the HTTP API
  <kind>            send a logger command, e.g. "list-files" or "set-setting"

Exit codes:
  0 success, 1 the logger reported a failure, 2 no reply before the timeout,
  3 the command could not be sent

Examples:
  loggerctl -s 1234 list-files CPU
  loggerctl -s 1234 set-setting PakBusAddress 2 --arg apply=true
  loggerctl -s 1234 edit-constants Interval=60 Offset=0
  loggerctl build-settings --broker test.mosquitto.org --out mqtt.bin

Flags:
`)
	fmt.Fprint(w, flagSet.FlagUsages())
}

// splitPair splits "key=value".
func splitPair(s string) (string, string, bool) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return "", "", false
	}
	return key, value, true
}
