package main

import (
	"fmt"
	"os"

	"github.com/danmuck/newtdock/internal/logging"
)

func main() {
	logging.ConfigureRuntime()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "newtdock: %v\n", err)
		os.Exit(1)
	}
}
