package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/anna-pye/myeventlane-v2-sub001/cmd"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	settings := &conf.Settings{}
	rootCmd := cmd.RootCommand(settings)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
