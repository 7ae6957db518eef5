package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestDeliverCommitsOnlyOnHandlerSuccess(t *testing.T) {
	t.Parallel()
	msg := kafka.Message{
		Topic: "judge.tasks",
		Value: []byte(`{"id":"sub-1"}`),
		Headers: []kafka.Header{
			{Key: headerID, Value: []byte("msg-1")},
		},
	}

	var seen *Message
	ok := &kafkaSubscription{handler: func(_ context.Context, m *Message) error {
		seen = m
		return nil
	}}
	if !ok.deliver(context.Background(), msg) {
		t.Fatal("expected successful handling to commit the offset")
	}
	if seen == nil || seen.ID != "msg-1" {
		t.Fatalf("expected handler to receive decoded message, got %+v", seen)
	}

	failing := &kafkaSubscription{handler: func(context.Context, *Message) error {
		return errors.New("worker busy")
	}}
	if failing.deliver(context.Background(), msg) {
		t.Fatal("expected handler failure to leave the offset uncommitted")
	}
}

func TestDeliverLeavesCancelledWorkUncommitted(t *testing.T) {
	t.Parallel()
	sub := &kafkaSubscription{handler: func(ctx context.Context, _ *Message) error {
		return ctx.Err()
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sub.deliver(ctx, kafka.Message{Topic: "judge.tasks"}) {
		t.Fatal("expected an interrupted task to stay uncommitted for redelivery")
	}
}
