// Package jsonskim is the C6 JSON skimmer: it locates named top-level
// fields and element boundaries in a server reply without fully unmarshaling
// it, returning byte ranges into the caller's own buffer.
//
// Grounded on original_source/core/pubnub_json_parse.c (a hand-rolled
// quote/bracket counter that scans for "name":VALUE at the top level and
// reports VALUE's span) — but rather than port that scanner by hand, this
// package gets the same zero-copy behavior from
// github.com/tidwall/gjson's Result.Index field, which is the byte offset
// of a matched value inside the original source slice. gjson is promoted
// here from an indirect dependency surfaced by a sibling repo in the
// retrieval pack (goadesign-goa-ai) to a direct one: it already implements
// exactly the escape-aware quote/bracket counting the original hand-rolls,
// is well-exercised, and avoids a second hand-written parser living next to
// the DNS and gzip codecs this module already carries.
package jsonskim

import (
	"github.com/tidwall/gjson"
)

// Slice is a zero-copy view into a reply buffer: reply[Offset : Offset+Len].
type Slice struct {
	Offset int
	Len    int
}

// Bytes returns the slice's bytes from the original reply it was produced
// against. Callers must pass the same buffer Field/Elements was called
// with.
func (s Slice) Bytes(reply []byte) []byte {
	if s.Len == 0 {
		return nil
	}
	return reply[s.Offset : s.Offset+s.Len]
}

func (s Slice) String(reply []byte) string {
	return string(s.Bytes(reply))
}

func (s Slice) Empty() bool { return s.Len == 0 }

// Field locates a top-level "name":VALUE pair in reply and returns a
// zero-copy Slice spanning VALUE as it appears in reply (string values keep
// their surrounding quotes and escapes). The second return is false if the
// field is absent or reply is not a JSON object.
func Field(reply []byte, name string) (Slice, bool) {
	res := gjson.GetBytes(reply, escapePathKey(name))
	if !res.Exists() {
		return Slice{}, false
	}
	return sliceFromResult(reply, res), true
}

// Elements returns a zero-copy Slice for each element of the top-level JSON
// array or each value of the top-level JSON object named name. For a bare
// top-level array, pass an empty name.
func Elements(reply []byte, name string) ([]Slice, bool) {
	var res gjson.Result
	if name == "" {
		res = gjson.ParseBytes(reply)
	} else {
		res = gjson.GetBytes(reply, escapePathKey(name))
	}
	if !res.Exists() || !res.IsArray() && !res.IsObject() {
		return nil, false
	}

	var out []Slice
	res.ForEach(func(_, value gjson.Result) bool {
		out = append(out, sliceFromResult(reply, value))
		return true
	})
	return out, true
}

// KeyedElements returns the (key, value-Slice) pairs of the top-level JSON
// object named name, preserving the server's response order. Used for the
// advanced-history "channels" map (spec §4.8).
func KeyedElements(reply []byte, name string) ([]string, []Slice, bool) {
	res := gjson.GetBytes(reply, escapePathKey(name))
	if !res.Exists() || !res.IsObject() {
		return nil, nil, false
	}
	var keys []string
	var vals []Slice
	res.ForEach(func(key, value gjson.Result) bool {
		keys = append(keys, key.String())
		vals = append(vals, sliceFromResult(reply, value))
		return true
	})
	return keys, vals, true
}

// Bool reports the boolean value of a top-level field, or ok=false if it is
// absent or not a JSON boolean/true/false literal.
func Bool(reply []byte, name string) (value bool, ok bool) {
	res := gjson.GetBytes(reply, escapePathKey(name))
	if !res.Exists() || res.Type != gjson.True && res.Type != gjson.False {
		return false, false
	}
	return res.Bool(), true
}

func sliceFromResult(reply []byte, res gjson.Result) Slice {
	if res.Type == gjson.String {
		// res.Str has already been unescaped by gjson; res.Index still
		// points at the opening quote of the raw source, so Raw's length
		// (including quotes) is what bounds the original span.
		return Slice{Offset: res.Index, Len: len(res.Raw)}
	}
	return Slice{Offset: res.Index, Len: len(res.Raw)}
}

// escapePathKey guards against name containing gjson path metacharacters
// (".", "*", "?", "|", "#", "@") by backslash-escaping them (and any
// backslash) so gjson treats name as a single literal key rather than a
// path expression.
func escapePathKey(name string) string {
	needsEscape := false
	for _, r := range name {
		switch r {
		case '.', '*', '?', '|', '#', '@':
			needsEscape = true
		}
	}
	if !needsEscape {
		return name
	}
	escaped := make([]byte, 0, len(name)+2)
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '.' || c == '*' || c == '?' || c == '|' || c == '#' || c == '@' || c == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, c)
	}
	return string(escaped)
}
