package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/adred-codev/pubnub-go/internal/urlenc"
)

// URLParams carries the optional query parameters a transaction may attach.
// Field order here is irrelevant; BuildURL always emits parameters in a
// fixed, stable order (spec §4.6: "parameter ordering is stable across
// builds so that response behavior is deterministic").
type URLParams struct {
	Auth              string
	UUID              string
	PNSDK             string
	Timetoken         string
	ChannelTimetokens string
	ChannelGroup      string
	// Add and Remove carry the channel-group membership mutation
	// parameters (spec §4.7 "adding a channel to a group is a distinct
	// transaction"); only one is ever set per request.
	Add    string
	Remove string
}

// paramOrder is the fixed emission order for optional query parameters.
// Changing this order changes every outgoing request's query string and
// must not be done casually — tests pin this ordering.
var paramOrder = []string{"auth", "uuid", "pnsdk", "timetoken", "channelTimetokens", "channel-group", "add", "remove"}

func (p URLParams) asMap() map[string]string {
	m := map[string]string{}
	if p.Auth != "" {
		m["auth"] = p.Auth
	}
	if p.UUID != "" {
		m["uuid"] = p.UUID
	}
	if p.PNSDK != "" {
		m["pnsdk"] = p.PNSDK
	}
	if p.Timetoken != "" {
		m["timetoken"] = p.Timetoken
	}
	if p.ChannelTimetokens != "" {
		m["channelTimetokens"] = p.ChannelTimetokens
	}
	if p.ChannelGroup != "" {
		m["channel-group"] = p.ChannelGroup
	}
	if p.Add != "" {
		m["add"] = p.Add
	}
	if p.Remove != "" {
		m["remove"] = p.Remove
	}
	return m
}

// BuildURL assembles "scheme://origin/path?params..." where path has
// already had its channel segments percent-encoded by the caller (via
// internal/urlenc), and params is built from URLParams in the fixed order
// of paramOrder. maxLen bounds the whole URL per invariant I6; exceeding it
// returns urlenc.ErrTooLong rather than emitting a truncated request line.
func BuildURL(scheme, origin, path string, params URLParams, maxLen int) (string, error) {
	m := params.asMap()
	var query strings.Builder
	first := true
	for _, key := range paramOrder {
		val, ok := m[key]
		if !ok {
			continue
		}
		encodedVal, err := urlenc.EncodeString(val, 0)
		if err != nil {
			return "", err
		}
		if first {
			query.WriteByte('?')
			first = false
		} else {
			query.WriteByte('&')
		}
		query.WriteString(key)
		query.WriteByte('=')
		query.WriteString(encodedVal)
	}

	full := fmt.Sprintf("%s://%s%s%s", scheme, origin, path, query.String())
	if maxLen > 0 && len(full) > maxLen {
		return "", &urlenc.ErrTooLong{MaxLen: maxLen}
	}
	return full, nil
}

// sortedKeys is used by tests that want a deterministic view of asMap
// independent of paramOrder, to assert paramOrder itself covers every key
// URLParams can produce.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
