package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	datalogger "github.com/grillbaer/data-logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := datalogger.Run(ctx, "../../data/config.yaml"); err != nil && err != context.Canceled {
		log.Fatalf("runtime exited: %v", err)
	}
}
