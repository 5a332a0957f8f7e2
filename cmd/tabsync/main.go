// Command tabsync is the operator CLI for the tabsync daemon. It talks to
// the daemon's HTTP API when it is running and falls back to the local
// databases for read-only and recovery operations when it is not.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
