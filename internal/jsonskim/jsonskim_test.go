package jsonskim

import "testing"

func TestFieldLocatesTopLevelString(t *testing.T) {
	reply := []byte(`{"error_message":"Invalid Character in Channel Name","error":true}`)
	s, ok := Field(reply, "error_message")
	if !ok {
		t.Fatalf("expected error_message to be found")
	}
	got := string(s.Bytes(reply))
	if got != `"Invalid Character in Channel Name"` {
		t.Fatalf("got %q", got)
	}
}

func TestFieldMissingReturnsFalse(t *testing.T) {
	reply := []byte(`{"error":false}`)
	if _, ok := Field(reply, "error_message"); ok {
		t.Fatalf("expected missing field to report ok=false")
	}
}

func TestBoolReadsTopLevelBoolean(t *testing.T) {
	reply := []byte(`{"error":false,"channels":{}}`)
	v, ok := Bool(reply, "error")
	if !ok || v != false {
		t.Fatalf("got v=%v ok=%v", v, ok)
	}
}

func TestKeyedElementsPreservesResponseOrder(t *testing.T) {
	reply := []byte(`{"error":false,"channels":{"ch2":3,"ch1":7}}`)
	keys, vals, ok := KeyedElements(reply, "channels")
	if !ok {
		t.Fatalf("expected channels object to be found")
	}
	if len(keys) != 2 || keys[0] != "ch2" || keys[1] != "ch1" {
		t.Fatalf("unexpected key order: %v", keys)
	}
	if string(vals[0].Bytes(reply)) != "3" || string(vals[1].Bytes(reply)) != "7" {
		t.Fatalf("unexpected values")
	}
}

func TestElementsOverSubscribeMessageArray(t *testing.T) {
	reply := []byte(`{"t":{"t":"15000"},"m":[{"c":"a","d":"x"},{"c":"b","d":"y"}]}`)
	elems, ok := Elements(reply, "m")
	if !ok || len(elems) != 2 {
		t.Fatalf("expected 2 elements, ok=%v", ok)
	}
	if string(elems[0].Bytes(reply)) != `{"c":"a","d":"x"}` {
		t.Fatalf("got %q", elems[0].Bytes(reply))
	}
}

func TestFieldNameRequiringEscape(t *testing.T) {
	reply := []byte(`{"weird.key":"value"}`)
	s, ok := Field(reply, "weird.key")
	if !ok {
		t.Fatalf("expected literal dotted key to be found")
	}
	if string(s.Bytes(reply)) != `"value"` {
		t.Fatalf("got %q", s.Bytes(reply))
	}
}

func TestParsePublishStatusOK(t *testing.T) {
	status, ok := ParsePublishStatus([]byte(`[1,"Sent","17276953512356789"]`))
	if !ok || status.Code != 1 {
		t.Fatalf("got %+v ok=%v", status, ok)
	}
}

func TestParsePublishStatusFailure(t *testing.T) {
	status, ok := ParsePublishStatus([]byte(`[0,"Invalid JSON","0"]`))
	if !ok || status.Code != 0 || status.Reason != "Invalid JSON" {
		t.Fatalf("got %+v ok=%v", status, ok)
	}
}

func TestParsePublishStatusRejectsNonArray(t *testing.T) {
	if _, ok := ParsePublishStatus([]byte(`{"error":true}`)); ok {
		t.Fatalf("expected non-array body to report ok=false")
	}
}
