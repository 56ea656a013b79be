package engine

import (
	"context"
	"testing"
	"time"

	"github.com/adred-codev/pubnub-go/internal/outcome"
	"github.com/adred-codev/pubnub-go/internal/resolver"
)

func TestRunSubscribeInitialConnect(t *testing.T) {
	origin := startFakeOrigin(t, "HTTP/1.1 200 OK", `{"t":{"t":"15000000000000000"},"m":[]}`)

	txn := newTestTxn(KindSubscribe)
	res := resolver.New("127.0.0.1:1", 5, 10)
	pool := NewPool()

	result, sub := RunSubscribe(context.Background(), txn, res, pool, SubscribeRequest{
		Scheme:       "http",
		Origin:       origin,
		SubscribeKey: "sub-key",
		Channels:     []string{"demo-channel"},
		Timetoken:    "0",
		Deadline:     2 * time.Second,
	})

	if result.Outcome != outcome.OK {
		t.Fatalf("expected OK, got %s", result.Outcome)
	}
	if sub.Timetoken != "15000000000000000" {
		t.Fatalf("got timetoken %q", sub.Timetoken)
	}
	if len(sub.Messages) != 0 {
		t.Fatalf("expected empty batch on initial connect")
	}
}

func TestRunSubscribeSlicesMessageBatch(t *testing.T) {
	body := `{"t":{"t":"15000000000000123"},"m":[{"c":"ch-a","d":{"text":"hi"}},{"c":"ch-b","d":"plain"}]}`
	origin := startFakeOrigin(t, "HTTP/1.1 200 OK", body)

	txn := newTestTxn(KindSubscribe)
	res := resolver.New("127.0.0.1:1", 5, 10)
	pool := NewPool()

	result, sub := RunSubscribe(context.Background(), txn, res, pool, SubscribeRequest{
		Scheme:       "http",
		Origin:       origin,
		SubscribeKey: "sub-key",
		Channels:     []string{"ch-a", "ch-b"},
		Timetoken:    "15000000000000000",
		Deadline:     2 * time.Second,
	})

	if result.Outcome != outcome.OK {
		t.Fatalf("expected OK, got %s", result.Outcome)
	}
	if len(sub.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sub.Messages))
	}
	if sub.Messages[0].Channel != "ch-a" || sub.Messages[1].Channel != "ch-b" {
		t.Fatalf("unexpected channel ordering: %+v", sub.Messages)
	}
	if sub.Timetoken != "15000000000000123" {
		t.Fatalf("got timetoken %q", sub.Timetoken)
	}
}

func TestRunSubscribePreservesTimetokenOnFailure(t *testing.T) {
	origin := startFakeOrigin(t, "HTTP/1.1 500 Internal Server Error", `oops`)

	txn := newTestTxn(KindSubscribe)
	res := resolver.New("127.0.0.1:1", 5, 10)
	pool := NewPool()

	result, sub := RunSubscribe(context.Background(), txn, res, pool, SubscribeRequest{
		Scheme:       "http",
		Origin:       origin,
		SubscribeKey: "sub-key",
		Channels:     []string{"ch-a"},
		Timetoken:    "15000000000000000",
		Deadline:     2 * time.Second,
	})

	if result.Outcome == outcome.OK {
		t.Fatalf("expected a failure outcome")
	}
	if sub.Timetoken != "" {
		t.Fatalf("RunSubscribe must not report a new timetoken on failure, got %q", sub.Timetoken)
	}
}
