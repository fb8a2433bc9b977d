// Package main is the entry point for the strcore-bench CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/rawbytedev/strcore/cmd/strcore-bench/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := commands.New(os.Stdout).Execute(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
