// Command cellenics replicates experiments, with every record and blob they
// own, from one environment into a namespaced sandbox of another.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cellenics/internal/errs"
)

var exitFunc = os.Exit

func main() {
	code := cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

// cli runs the command line and returns the process exit code.
func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errs.ErrProtectedDestination):
		_, _ = fmt.Fprintf(stderr, "Cowardly refusing to clone: %v\n", err)
		return 1
	default:
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}
