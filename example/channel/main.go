package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/strawgate/homeassistant-elasticsearch"
)

// Drives the pipeline from a simulated host and fans published batches out
// through a channel. No Home Assistant or cluster is needed.
func main() {
	cfg := &hassflow.Config{
		Pipeline: hassflow.PipelineConfig{
			PublishInterval: 5 * time.Second,
			ChangeTypes:     []string{"STATE", "ATTRIBUTE"},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host := hassflow.NewExternalHost(hassflow.SystemInfo{Version: "simulated"})
	gw, batches, closeBatches := hassflow.NewChannelGateway("fanout", 32)
	defer closeBatches()

	go fanoutWorker("stdout", batches)
	go simulate(ctx, host)

	flow, err := hassflow.ConfFromConfig(cfg)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := flow.StreamIN(hassflow.StreamInHost(host)).Run(ctx, hassflow.StreamOutGateway(gw)); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}

func simulate(ctx context.Context, host *hassflow.ExternalHost) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			temp := fmt.Sprintf("%.1f", 18+rand.Float64()*6)
			if _, err := host.SetState("sensor.living_room_temperature", temp, map[string]any{
				"unit_of_measurement": "°C",
				"device_class":        "temperature",
				"state_class":         "measurement",
			}); err != nil {
				log.Printf("set state: %v", err)
			}
		}
	}
}

func fanoutWorker(name string, batches <-chan []hassflow.Document) {
	for batch := range batches {
		for _, doc := range batch {
			fmt.Printf("[%s] %s %s=%s\n", name, doc.Timestamp, doc.Hass.Entity.ID, doc.Hass.Entity.Value)
		}
	}
}
