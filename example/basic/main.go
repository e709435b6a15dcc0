package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/strawgate/homeassistant-elasticsearch"
)

func main() {
	flow, err := hassflow.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flow.Run(ctx); err != nil {
		log.Fatalf("runtime exited: %v", err)
	}
}
