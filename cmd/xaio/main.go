package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"xaio/internal/scheduler"
)

const exitSweepBusy = 3

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, scheduler.ErrSweepActive) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitSweepBusy)
		}
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
