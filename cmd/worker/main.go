package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		l := zerolog.New(stderr).With().Timestamp().Logger()
		l.Error().Err(err).Msg("worker failed")
		return 1
	}
	return 0
}
