// Package history is the C9 advanced-history / message-counts decoder: it
// validates the outer {"error":false,"channels":{...}} response shape and
// offers two views over the per-channel counts (spec §4.8).
//
// Grounded on original_source/core/pubnub_advanced_history.c, which walks
// the same outer shape by hand; here the walk is done with
// internal/jsonskim (itself backed by tidwall/gjson) instead of a
// hand-rolled scanner.
package history

import (
	"strconv"

	"github.com/adred-codev/pubnub-go/internal/jsonskim"
	"github.com/adred-codev/pubnub-go/internal/outcome"
)

// ChannelCount is one (channel-name, count) pair (spec §3).
type ChannelCount struct {
	Channel string
	Count   int
}

// AbsentCount is the sentinel used by CountsForChannels when a requested
// channel is missing from the response (spec §4.8 step 3).
const AbsentCount = -1

// Decode validates body's outer shape and returns the raw decoded channels
// in the server's response order. It fails with outcome.ErrorOnServer if
// "error" is true, or outcome.FormatError if the shape doesn't match at
// all.
func Decode(body []byte) ([]ChannelCount, outcome.Kind, error) {
	isError, ok := jsonskim.Bool(body, "error")
	if !ok {
		return nil, outcome.FormatError, errShape("missing or non-boolean \"error\" field")
	}
	if isError {
		return nil, outcome.ErrorOnServer, nil
	}

	keys, vals, ok := jsonskim.KeyedElements(body, "channels")
	if !ok {
		return nil, outcome.FormatError, errShape("missing \"channels\" object")
	}

	out := make([]ChannelCount, 0, len(keys))
	for i, key := range keys {
		n, err := strconv.Atoi(vals[i].String(body))
		if err != nil || n < 0 {
			return nil, outcome.FormatError, errShape("non-negative integer expected for channel count")
		}
		out = append(out, ChannelCount{Channel: key, Count: n})
	}
	return out, outcome.OK, nil
}

// FillInResponseOrder implements spec §4.8's first view: it copies decoded
// entries into dst in the order the server returned them, truncating
// (never failing) if dst is shorter than the number of entries, and
// returns how many entries were written.
func FillInResponseOrder(decoded []ChannelCount, dst []ChannelCount) int {
	n := copy(dst, decoded)
	return n
}

// CountsForChannels implements spec §4.8's second view: it returns counts
// in the caller's requested channel order, using AbsentCount for any
// channel not present in decoded.
func CountsForChannels(decoded []ChannelCount, requested []string) []ChannelCount {
	byName := make(map[string]int, len(decoded))
	for _, c := range decoded {
		byName[c.Channel] = c.Count
	}
	out := make([]ChannelCount, len(requested))
	for i, ch := range requested {
		count, ok := byName[ch]
		if !ok {
			count = AbsentCount
		}
		out[i] = ChannelCount{Channel: ch, Count: count}
	}
	return out
}

type shapeError struct{ reason string }

func (e *shapeError) Error() string { return "history: " + e.reason }

func errShape(reason string) error { return &shapeError{reason: reason} }
