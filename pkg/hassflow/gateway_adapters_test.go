package hassflow

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
)

func testActions(ids ...string) []BulkAction {
	out := make([]BulkAction, len(ids))
	for i, id := range ids {
		doc := &Document{}
		doc.Hass.Entity.ID = id
		out[i] = BulkAction{Operation: domain.BulkOpCreate, Index: "metrics-homeassistant.sensor-default", Document: doc}
	}
	return out
}

func TestNewCallbackGateway(t *testing.T) {
	var received []Document
	gw := NewCallbackGateway("cb", func(_ context.Context, docs []Document) error {
		received = append(received, docs...)
		return nil
	})

	if err := gw.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	res, err := gw.Bulk(context.Background(), testActions("sensor.a", "sensor.b"))
	if err != nil {
		t.Fatalf("Bulk returned error: %v", err)
	}
	if len(received) != 2 || received[1].Hass.Entity.ID != "sensor.b" {
		t.Fatalf("unexpected documents: %+v", received)
	}
	if len(res.Items) != 2 || res.Items[0].Status != http.StatusCreated || len(res.Failed()) != 0 {
		t.Fatalf("expected two created items, got %+v", res)
	}
	if res.Items[0].Index != "metrics-homeassistant.sensor-default" {
		t.Fatalf("expected index to be echoed, got %q", res.Items[0].Index)
	}
}

func TestNewCallbackGatewayNilHandler(t *testing.T) {
	gw := NewCallbackGateway("", nil)
	if err := gw.Ping(context.Background()); errs.ClassOf(err) != errs.Invalid {
		t.Fatalf("expected invalid ping error, got %v", err)
	}
	if _, err := gw.Bulk(context.Background(), testActions("sensor.a")); err == nil {
		t.Fatalf("expected error when callback is nil")
	}
}

func TestNewCallbackGatewayHandlerError(t *testing.T) {
	boom := errors.New("downstream unavailable")
	gw := NewCallbackGateway("cb", func(context.Context, []Document) error { return boom })

	_, err := gw.Bulk(context.Background(), testActions("sensor.a"))
	if !errors.Is(err, boom) || !errs.IsTransient(err) {
		t.Fatalf("expected transient wrap of handler error, got %v", err)
	}
}

func TestNewChannelGateway(t *testing.T) {
	gw, ch, closeFn := NewChannelGateway("chan", 1)
	defer closeFn()

	errCh := make(chan error, 1)
	go func() {
		_, err := gw.Bulk(context.Background(), testActions("light.kitchen"))
		errCh <- err
	}()

	var batch []Document
	select {
	case batch = <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel batch")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("Bulk returned error: %v", err)
	}
	if len(batch) != 1 || batch[0].Hass.Entity.ID != "light.kitchen" {
		t.Fatalf("unexpected batch data: %+v", batch)
	}

	closeFn()
	if _, err := gw.Bulk(context.Background(), testActions("light.kitchen")); !errors.Is(err, ErrChannelGatewayClosed) {
		t.Fatalf("expected ErrChannelGatewayClosed, got %v", err)
	}
	if err := gw.Ping(context.Background()); !errors.Is(err, ErrChannelGatewayClosed) {
		t.Fatalf("expected closed gateway to fail ping, got %v", err)
	}
}

func TestChannelGatewayHonoursContext(t *testing.T) {
	gw, _, closeFn := NewChannelGateway("chan", 0)
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := gw.Bulk(ctx, testActions("sensor.a")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error with no reader, got %v", err)
	}
}
