package queue

import (
	"context"
	"testing"
	"time"

	"mealcard/internal/verify"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	messages, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	if err := q.Publish(ctx, Message{Type: "attempt", Body: []byte("x")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-messages:
		if msg.Type != "attempt" || string(msg.Body) != "x" {
			t.Fatalf("got %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	// Bodies may contain the separator; only the first one splits.
	msg := Message{Type: "attempt", Body: []byte(`{"token":"a|b"}`)}
	got, err := deserialize(serialize(msg))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got.Type != msg.Type || string(got.Body) != string(msg.Body) {
		t.Fatalf("round trip = %+v, want %+v", got, msg)
	}
}

func TestAuditPublisher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	messages, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	at := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	attempt := verify.Attempt{Token: "S1001", Meal: verify.Lunch, Reason: verify.ReasonGranted, Granted: true, At: at}
	if err := NewAuditPublisher(q).PublishAttempt(ctx, attempt); err != nil {
		t.Fatalf("PublishAttempt: %v", err)
	}

	select {
	case msg := <-messages:
		if msg.Type != MsgAttempt {
			t.Fatalf("type = %q, want %q", msg.Type, MsgAttempt)
		}
		got, err := DecodeAttempt(msg.Body)
		if err != nil {
			t.Fatalf("DecodeAttempt: %v", err)
		}
		if got.Token != attempt.Token || got.Reason != attempt.Reason || !got.Granted || !got.At.Equal(at) {
			t.Fatalf("decoded %+v, want %+v", got, attempt)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}
