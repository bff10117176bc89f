package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mediasrv/internal/store"
)

var errMediaIDRequired = errors.New("media id is required")

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return errors.New(message)
		}
		return nil
	}
}

// requireMediaID accepts a single well-formed media id, so typos fail
// before a request is sent.
func requireMediaID(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errMediaIDRequired
	}
	if !store.IsMediaID(args[0]) {
		return fmt.Errorf("invalid media id %q (expected md-xxxx)", args[0])
	}
	return nil
}
