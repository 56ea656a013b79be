package engine

import (
	"strings"
	"testing"
)

func TestBuildURLStableParameterOrder(t *testing.T) {
	params := URLParams{
		ChannelGroup: "group1",
		Timetoken:    "123",
		UUID:         "abc-uuid",
		Auth:         "secret",
	}
	got, err := BuildURL("https", "ps.pndsn.com", "/publish/pub/sub/0/ch/0", params, 0)
	if err != nil {
		t.Fatalf("BuildURL: %v", err)
	}
	authIdx := strings.Index(got, "auth=")
	uuidIdx := strings.Index(got, "uuid=")
	ttIdx := strings.Index(got, "timetoken=")
	cgIdx := strings.Index(got, "channel-group=")
	if !(authIdx < uuidIdx && uuidIdx < ttIdx && ttIdx < cgIdx) {
		t.Fatalf("parameters out of stable order: %s", got)
	}
}

func TestBuildURLDeterministicAcrossCalls(t *testing.T) {
	params := URLParams{UUID: "u1", Auth: "a1", Timetoken: "0"}
	first, err := BuildURL("https", "ps.pndsn.com", "/time/0", params, 0)
	if err != nil {
		t.Fatalf("BuildURL: %v", err)
	}
	second, err := BuildURL("https", "ps.pndsn.com", "/time/0", params, 0)
	if err != nil {
		t.Fatalf("BuildURL: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical URLs for identical params: %q vs %q", first, second)
	}
}

func TestBuildURLEnforcesMaxLen(t *testing.T) {
	params := URLParams{UUID: strings.Repeat("x", 1000)}
	if _, err := BuildURL("https", "ps.pndsn.com", "/time/0", params, 50); err == nil {
		t.Fatalf("expected URL exceeding maxLen to fail")
	}
}

func TestBuildURLOmitsAbsentParameters(t *testing.T) {
	got, err := BuildURL("https", "ps.pndsn.com", "/time/0", URLParams{}, 0)
	if err != nil {
		t.Fatalf("BuildURL: %v", err)
	}
	if strings.Contains(got, "?") {
		t.Fatalf("expected no query string when no params set: %s", got)
	}
}

func TestParamOrderCoversEveryField(t *testing.T) {
	full := URLParams{
		Auth: "a", UUID: "u", PNSDK: "p", Timetoken: "t",
		ChannelTimetokens: "ct", ChannelGroup: "cg",
		Add: "ad", Remove: "rm",
	}
	m := full.asMap()
	seen := map[string]bool{}
	for _, k := range paramOrder {
		seen[k] = true
	}
	for _, k := range sortedKeys(m) {
		if !seen[k] {
			t.Fatalf("asMap produced key %q not present in paramOrder", k)
		}
	}
}
