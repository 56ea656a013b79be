package dnscodec

import (
	"encoding/binary"
	"testing"
)

func TestEncodeQueryFacebookDotCom(t *testing.T) {
	buf, err := EncodeQuery("facebook.com", TypeA)
	if err != nil {
		t.Fatalf("EncodeQuery: %v", err)
	}
	name := buf[headerSize : len(buf)-4]
	want := []byte{8, 'f', 'a', 'c', 'e', 'b', 'o', 'o', 'k', 3, 'c', 'o', 'm', 0}
	if string(name) != string(want) {
		t.Fatalf("encoded name mismatch:\n got  % x\n want % x", name, want)
	}
	qtype := binary.BigEndian.Uint16(buf[len(buf)-4 : len(buf)-2])
	qclass := binary.BigEndian.Uint16(buf[len(buf)-2:])
	if qtype != TypeA || qclass != ClassIN {
		t.Fatalf("bad question footer: qtype=%d qclass=%d", qtype, qclass)
	}
}

func TestEncodeQueryRejectsEmptyLabel(t *testing.T) {
	if _, err := EncodeQuery("foo..com", TypeA); err == nil {
		t.Fatalf("expected error for empty label")
	}
}

func TestEncodeQueryRejectsOverlongLabel(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := EncodeQuery(string(long)+".com", TypeA); err == nil {
		t.Fatalf("expected error for label over 63 octets")
	}
}

// buildResponse assembles a minimal well-formed DNS response header plus an
// echoed question and one answer record, for use by decoder tests.
func buildResponse(t *testing.T, answerType uint16, rdata []byte) []byte {
	t.Helper()
	query, err := EncodeQuery("facebook.com", answerType)
	if err != nil {
		t.Fatalf("EncodeQuery: %v", err)
	}
	buf := make([]byte, len(query))
	copy(buf, query)
	binary.BigEndian.PutUint16(buf[2:4], 0x8180) // QR=1, RD=1, RA=1, RCODE=0
	binary.BigEndian.PutUint16(buf[6:8], 1)       // ANCOUNT=1

	questionName := query[headerSize : len(query)-4]
	var rr []byte
	rr = append(rr, 0xC0, 0x0C) // pointer back to the question's name at offset 12
	var typeClassTTL [8]byte
	binary.BigEndian.PutUint16(typeClassTTL[0:2], answerType)
	binary.BigEndian.PutUint16(typeClassTTL[2:4], ClassIN)
	binary.BigEndian.PutUint32(typeClassTTL[4:8], 300)
	rr = append(rr, typeClassTTL[:]...)
	var rdlen [2]byte
	binary.BigEndian.PutUint16(rdlen[:], uint16(len(rdata)))
	rr = append(rr, rdlen[:]...)
	rr = append(rr, rdata...)

	_ = questionName
	return append(buf, rr...)
}

func TestDecodeFirstAddressIPv4(t *testing.T) {
	resp := buildResponse(t, TypeA, []byte{1, 2, 3, 4})
	ans, err := DecodeFirstAddress(resp)
	if err != nil {
		t.Fatalf("DecodeFirstAddress: %v", err)
	}
	if ans.Addr.String() != "1.2.3.4" {
		t.Fatalf("got %s want 1.2.3.4", ans.Addr)
	}
}

func TestDecodeFirstAddressIPv6(t *testing.T) {
	rdata := []byte{0x20, 1, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	resp := buildResponse(t, TypeAAAA, rdata)
	ans, err := DecodeFirstAddress(resp)
	if err != nil {
		t.Fatalf("DecodeFirstAddress: %v", err)
	}
	if !ans.Addr.Is6() {
		t.Fatalf("expected an IPv6 address, got %s", ans.Addr)
	}
}

func TestDecodeRejectsShortMessage(t *testing.T) {
	if _, err := DecodeFirstAddress(make([]byte, 4)); err == nil {
		t.Fatalf("expected error for undersized message")
	}
}

func TestDecodeRejectsMissingQRFlag(t *testing.T) {
	resp := buildResponse(t, TypeA, []byte{1, 2, 3, 4})
	resp[2] &^= 0x80 // clear QR
	if _, err := DecodeFirstAddress(resp); err == nil {
		t.Fatalf("expected error when QR flag is not set")
	}
}

func TestDecodeRejectsNonzeroRcode(t *testing.T) {
	resp := buildResponse(t, TypeA, []byte{1, 2, 3, 4})
	resp[3] |= 0x03 // RCODE=3 NXDOMAIN
	if _, err := DecodeFirstAddress(resp); err == nil {
		t.Fatalf("expected error for nonzero RCODE")
	}
}

func TestDecodeAdversarialInputsNeverPanicOrHang(t *testing.T) {
	good := buildResponse(t, TypeA, []byte{1, 2, 3, 4})

	cases := map[string][]byte{
		"truncated header":         good[:6],
		"truncated mid-question":   good[:14],
		"truncated mid-answer":     good[:len(good)-2],
		"self-referential pointer": withPointerLoop(good),
		"pointer into header":      withPointerTo(good, 2),
		"pointer past end":         withPointerTo(good, len(good)+100),
		"huge answer count":        withAnswerCount(good, 0xFFFF),
		"rdlength overruns buffer": withBadRDLength(good),
		"reserved label bits":      withReservedLabelBits(good),
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("panicked on %q: %v", name, r)
				}
			}()
			_, _ = DecodeFirstAddress(input)
		})
	}
}

func withPointerLoop(resp []byte) []byte {
	out := append([]byte(nil), resp...)
	// Make the answer's name pointer point at itself.
	answerNameOffset := headerSize + len("facebook") + 1 + len("com") + 1 + 1 + 4
	out[answerNameOffset] = 0xC0
	out[answerNameOffset+1] = byte(answerNameOffset)
	return out
}

func withPointerTo(resp []byte, target int) []byte {
	out := append([]byte(nil), resp...)
	answerNameOffset := headerSize + len("facebook") + 1 + len("com") + 1 + 1 + 4
	out[answerNameOffset] = 0xC0 | byte(target>>8)
	out[answerNameOffset+1] = byte(target)
	return out
}

func withAnswerCount(resp []byte, count uint16) []byte {
	out := append([]byte(nil), resp...)
	binary.BigEndian.PutUint16(out[6:8], count)
	return out
}

func withBadRDLength(resp []byte) []byte {
	out := append([]byte(nil), resp...)
	rdlenOffset := len(out) - 4 - 2
	binary.BigEndian.PutUint16(out[rdlenOffset:rdlenOffset+2], 0xFFFF)
	return out
}

func withReservedLabelBits(resp []byte) []byte {
	out := append([]byte(nil), resp...)
	out[headerSize] = 0x80 // top bits 10 - reserved
	return out
}
