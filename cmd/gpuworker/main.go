package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(os.LookupEnv)
	cmd.SetArgs(os.Args[1:])
	if err := cmd.ExecuteContext(ctx); err != nil {
		if _, logged := err.(loggedError); !logged {
			fmt.Fprintln(os.Stderr, "gpuworker:", err)
		}
		stop()
		os.Exit(1)
	}
}
