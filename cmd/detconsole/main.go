// Command detconsole is a terminal console for a Determined master.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rshade/detconsole/internal/cli"
	"github.com/rshade/detconsole/internal/deterr"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev" //nolint:gochecknoglobals // build-time variable

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitInput = 2
	exitAuth  = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run executes the CLI with args and returns the process exit code.
func run(args []string, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(version)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil && shouldPrint(err) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

// shouldPrint is false for errors the handler already showed the user or
// was asked to keep quiet. The handler never notifies auth errors or
// warnings without a public message.
func shouldPrint(err error) bool {
	var de *deterr.DetError
	if !errors.As(err, &de) || !de.Handled() {
		return true
	}
	if de.Silent {
		return false
	}
	return de.Type == deterr.TypeAuth || (de.Level == deterr.LevelWarning && de.PublicMessage == "")
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var de *deterr.DetError
	if errors.As(err, &de) {
		switch de.Type {
		case deterr.TypeAuth:
			return exitAuth
		case deterr.TypeInput:
			return exitInput
		}
	}
	return exitError
}
