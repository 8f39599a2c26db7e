package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ruyvieira/openai-whisper/internal/failure"
)

var version = "dev"

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "openai-whisper:", err)
		}
		os.Exit(failure.ExitCode(err))
	}
}
