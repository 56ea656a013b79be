package history

import (
	"testing"

	"github.com/adred-codev/pubnub-go/internal/outcome"
)

func TestDecodeHappyPath(t *testing.T) {
	body := []byte(`{"error":false,"channels":{"ch1":3,"ch2":0,"ch3":42}}`)
	decoded, kind, err := Decode(body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if kind != outcome.OK {
		t.Fatalf("expected OK, got %s", kind)
	}
	if len(decoded) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(decoded))
	}
	if decoded[0].Channel != "ch1" || decoded[0].Count != 3 {
		t.Fatalf("unexpected first entry: %+v", decoded[0])
	}
}

func TestDecodeServerError(t *testing.T) {
	body := []byte(`{"error":true,"message":"Invalid timetoken"}`)
	_, kind, err := Decode(body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if kind != outcome.ErrorOnServer {
		t.Fatalf("expected ERROR_ON_SERVER, got %s", kind)
	}
}

func TestDecodeMalformedShape(t *testing.T) {
	body := []byte(`{"not-error":false}`)
	_, kind, err := Decode(body)
	if err == nil || kind != outcome.FormatError {
		t.Fatalf("expected FORMAT_ERROR, got kind=%s err=%v", kind, err)
	}
}

func TestDecodeRejectsNegativeCount(t *testing.T) {
	body := []byte(`{"error":false,"channels":{"ch1":-5}}`)
	_, kind, err := Decode(body)
	if err == nil || kind != outcome.FormatError {
		t.Fatalf("expected FORMAT_ERROR for negative count, got kind=%s err=%v", kind, err)
	}
}

func TestFillInResponseOrderTruncatesWithoutFailing(t *testing.T) {
	decoded := []ChannelCount{{Channel: "a", Count: 1}, {Channel: "b", Count: 2}, {Channel: "c", Count: 3}}
	dst := make([]ChannelCount, 2)
	n := FillInResponseOrder(decoded, dst)
	if n != 2 {
		t.Fatalf("expected 2 entries copied, got %d", n)
	}
	if dst[0].Channel != "a" || dst[1].Channel != "b" {
		t.Fatalf("unexpected truncated contents: %+v", dst)
	}
}

func TestCountsForChannelsUsesSentinelForAbsent(t *testing.T) {
	decoded := []ChannelCount{{Channel: "ch1", Count: 5}}
	out := CountsForChannels(decoded, []string{"ch1", "ch2"})
	if out[0].Count != 5 {
		t.Fatalf("expected ch1 count 5, got %d", out[0].Count)
	}
	if out[1].Count != AbsentCount {
		t.Fatalf("expected AbsentCount sentinel for ch2, got %d", out[1].Count)
	}
}
