package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/strawgate/homeassistant-elasticsearch/pkg/hassflow"
)

// Prints every document as one JSON line instead of writing to a cluster.
func main() {
	flow, err := hassflow.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	callback := func(_ context.Context, docs []hassflow.Document) error {
		for _, doc := range docs {
			if err := enc.Encode(doc); err != nil {
				return err
			}
		}
		return nil
	}

	if err := flow.Run(ctx, hassflow.StreamOutCallback("stdout", callback)); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}
