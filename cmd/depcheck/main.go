package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ralt/depcheck/internal/cli"
)

func main() {
	// Setup logging format
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logrus.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	code := cli.ExitCode(err)

	var exit *cli.ExitError
	if err != nil && (!errors.As(err, &exit) || exit.Err != nil) {
		logrus.Error(err)
		if code == cli.ExitUsage {
			rootCmd.PrintErrln("Run 'depcheck --help' for usage.")
		}
	}
	stop()
	os.Exit(code)
}
