package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/services"
)

func TestPubSubOrderEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}

	occurredAt := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	event := services.OrderEvent{
		Type:        "order.status_changed",
		OrderID:     "ord_test",
		OrderNumber: "GM-2026-000042",
		CustomerID:  "cus_test",
		Status:      domain.OrderConfirmed,
		OccurredAt:  occurredAt,
		Metadata:    map[string]string{"from": "pending"},
	}

	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.OrderEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != event.OrderID || payload.Type != event.Type {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["orderNumber"]; attr != "GM-2026-000042" {
		t.Fatalf("expected order number attribute, got %q", attr)
	}
	if _, ok := messages[0].Attributes["metadata"]; ok {
		t.Fatalf("metadata attribute should not be present")
	}
}

func TestNewPubSubOrderEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubOrderEventPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
