package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dynaclean/dynaflow/cmd/dynactl/cli"
	"github.com/dynaclean/dynaflow/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(cli.Env{
		LoadConfig: app.LoadConfig,
		Logger:     app.NewLogger(nil),
		Stdout:     os.Stdout,
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
