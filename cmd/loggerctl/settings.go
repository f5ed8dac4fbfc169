package main

import (
	"fmt"
	"io"
	"strconv"

	"loggerctl/mqttconfig"
)

func buildSettings(opts *options, stdout io.Writer) error {
	b := mqttconfig.NewBuilder().WithHeader(opts.header)

	if opts.broker != "" {
		if err := b.BrokerEndpoint(opts.broker); err != nil {
			return withExitCode(exitError, err)
		}
	}
	for _, f := range opts.fields {
		key, value, ok := splitPair(f)
		if !ok {
			return withExitCode(exitError, fmt.Errorf("invalid --field %q, expected id=value", f))
		}
		id, err := strconv.ParseUint(key, 0, 16)
		if err != nil {
			return withExitCode(exitError, fmt.Errorf("invalid field id %q: %w", key, err))
		}
		if err := b.Field(uint16(id), value); err != nil {
			return withExitCode(exitError, err)
		}
	}

	if err := b.WriteFile(opts.out); err != nil {
		return withExitCode(exitError, err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", opts.out)
	return nil
}
