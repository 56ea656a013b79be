package jsonskim

import "github.com/tidwall/gjson"

// PublishStatus is the decoded shape of a publish response body, a JSON
// array whose first element is an integer status code (spec §4.6):
// [1, "Sent", "17276953...") on success,
// [0, "Invalid Character in Channel Name", "0"] on failure.
type PublishStatus struct {
	Code   int
	Reason string
}

// ParsePublishStatus reads the leading integer and (if present) the second
// string element of a publish response array. ok is false if body is not a
// JSON array or its first element is not an integer.
func ParsePublishStatus(body []byte) (PublishStatus, bool) {
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return PublishStatus{}, false
	}
	arr := res.Array()
	if len(arr) == 0 || arr[0].Type != gjson.Number {
		return PublishStatus{}, false
	}
	status := PublishStatus{Code: int(arr[0].Int())}
	if len(arr) > 1 && arr[1].Type == gjson.String {
		status.Reason = arr[1].String()
	}
	return status, true
}
