// Package dnscodec encodes A/AAAA queries and decodes responses, including
// pointer-compressed label decoding, with strict bounds checking against
// malformed or adversarial datagrams (spec §4.3, invariant I5).
//
// Grounded on two sources:
//   - other_examples' XTLS-Xray xdns/dns.go (readName's compression-pointer
//     walk: a single forward reader with a remembered "seek back to here"
//     position and a hop counter) for the overall decoder shape;
//   - original_source/lib/pubnub_dns_codec.c (dns_label_decode,
//     pubnub_pick_resolved_address) for the exact bounds the spec calls out:
//     offsets must land in [12, msg_size), and "first usable A/AAAA answer
//     wins."
//
// Design Notes (spec §9) calls out that the original C source has two
// compiled variants for RDATA-offset arithmetic and that a bounded-read
// variant must be chosen deliberately. This decoder always computes RDATA
// bounds as [offset, offset+length) forward from the start of RDATA (never
// counting backward from a buffer's end), which is trivially bounded by a
// single length check against the remaining datagram.
package dnscodec

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Query/answer types understood by this codec (spec §4.3, §6).
const (
	TypeA    uint16 = 1
	TypeAAAA uint16 = 28
	ClassIN  uint16 = 1
)

const (
	headerSize = 12
	// maxLabelHops bounds pointer-chase + literal hops while decoding one
	// name (spec I5(a), original's MAXIMUM_LOOP_PASSES).
	maxLabelHops = 12
	maxLabelLen  = 63
)

// ErrBufferTooSmall is returned by EncodeQuery when buf cannot hold the
// full request.
type ErrBufferTooSmall struct{ Needed, Have int }

func (e *ErrBufferTooSmall) Error() string {
	return fmt.Sprintf("dnscodec: buffer too small: need %d, have %d", e.Needed, e.Have)
}

// ErrMalformed covers every response-side validation and bounds failure;
// spec §4.4 maps all of these to ADDR_RESOLUTION_FAILED at the resolver
// layer.
type ErrMalformed struct{ Reason string }

func (e *ErrMalformed) Error() string { return "dnscodec: " + e.Reason }

// EncodeQuery writes a 12-octet header (ID fixed, RD=1, QDCOUNT=1) followed
// by the run-length-encoded host name and the (QTYPE, QCLASS) question
// footer into a newly allocated buffer sized for the whole request. It
// fails, writing nothing, if any label is empty or exceeds 63 octets.
func EncodeQuery(host string, qtype uint16) ([]byte, error) {
	labels, err := splitLabels(host)
	if err != nil {
		return nil, err
	}

	encodedNameLen := 1 // terminating zero
	for _, l := range labels {
		encodedNameLen += 1 + len(l)
	}
	total := headerSize + encodedNameLen + 4

	buf := make([]byte, total)
	binary.BigEndian.PutUint16(buf[0:2], 0x0021) // arbitrary fixed ID, matches original's "33"
	binary.BigEndian.PutUint16(buf[2:4], 0x0100) // RD=1, all other flags clear
	binary.BigEndian.PutUint16(buf[4:6], 1)       // QDCOUNT=1
	// ANCOUNT, NSCOUNT, ARCOUNT already zero.

	pos := headerSize
	for _, l := range labels {
		buf[pos] = byte(len(l))
		pos++
		copy(buf[pos:], l)
		pos += len(l)
	}
	buf[pos] = 0
	pos++

	binary.BigEndian.PutUint16(buf[pos:pos+2], qtype)
	binary.BigEndian.PutUint16(buf[pos+2:pos+4], ClassIN)

	return buf, nil
}

func splitLabels(host string) ([][]byte, error) {
	var labels [][]byte
	start := 0
	for i := 0; i <= len(host); i++ {
		if i == len(host) || host[i] == '.' {
			label := host[start:i]
			if len(label) == 0 {
				return nil, &ErrMalformed{Reason: "empty label in host name"}
			}
			if len(label) > maxLabelLen {
				return nil, &ErrMalformed{Reason: fmt.Sprintf("label %q exceeds %d octets", label, maxLabelLen)}
			}
			labels = append(labels, []byte(label))
			start = i + 1
		}
	}
	return labels, nil
}

// Answer is one resolved A/AAAA record.
type Answer struct {
	Type uint16
	Addr netip.Addr
}

// DecodeFirstAddress validates the response header (message length, QR bit,
// RCODE) then walks question and answer records, returning the first
// answer whose TYPE is A with RDLENGTH==4 or AAAA with RDLENGTH==16. Any
// other record is skipped. Every read is bounds-checked against buf before
// it happens (I5(b)); compression pointers must land in [12, len(buf)) and
// are limited to maxLabelHops hops (I5(a), I5(c)).
func DecodeFirstAddress(buf []byte) (Answer, error) {
	if len(buf) < headerSize {
		return Answer{}, &ErrMalformed{Reason: "message shorter than header"}
	}
	flags := binary.BigEndian.Uint16(buf[2:4])
	if flags&0x8000 == 0 {
		return Answer{}, &ErrMalformed{Reason: "QR flag not set"}
	}
	if rcode := flags & 0x000F; rcode != 0 {
		return Answer{}, &ErrMalformed{Reason: fmt.Sprintf("RCODE=%d", rcode)}
	}

	qdCount := binary.BigEndian.Uint16(buf[4:6])
	anCount := binary.BigEndian.Uint16(buf[6:8])

	pos := headerSize
	for i := uint16(0); i < qdCount; i++ {
		np, err := skipName(buf, pos)
		if err != nil {
			return Answer{}, err
		}
		pos = np + 4 // QTYPE + QCLASS
		if pos > len(buf) {
			return Answer{}, &ErrMalformed{Reason: "question section runs past buffer"}
		}
	}

	for i := uint16(0); i < anCount; i++ {
		np, err := skipName(buf, pos)
		if err != nil {
			return Answer{}, err
		}
		pos = np
		if pos+10 > len(buf) {
			return Answer{}, &ErrMalformed{Reason: "answer record header runs past buffer"}
		}
		rrType := binary.BigEndian.Uint16(buf[pos : pos+2])
		rdLength := int(binary.BigEndian.Uint16(buf[pos+8 : pos+10]))
		rdStart := pos + 10
		rdEnd := rdStart + rdLength
		if rdEnd > len(buf) {
			return Answer{}, &ErrMalformed{Reason: "RDATA runs past buffer"}
		}

		switch {
		case rrType == TypeA && rdLength == 4:
			a, ok := netip.AddrFromSlice(buf[rdStart:rdEnd])
			if ok {
				return Answer{Type: TypeA, Addr: a}, nil
			}
		case rrType == TypeAAAA && rdLength == 16:
			a, ok := netip.AddrFromSlice(buf[rdStart:rdEnd])
			if ok {
				return Answer{Type: TypeAAAA, Addr: a}, nil
			}
		}
		pos = rdEnd
	}

	return Answer{}, &ErrMalformed{Reason: "no usable A/AAAA answer"}
}

// skipName advances past one (possibly compressed) name starting at pos and
// returns the position immediately after it in the *forward* stream (i.e.
// after following pointers, it still reports where the original record
// continues, not where the pointer target was).
func skipName(buf []byte, pos int) (int, error) {
	hops := 0
	reader := pos
	firstJump := -1

	for {
		if reader >= len(buf) {
			return 0, &ErrMalformed{Reason: "name runs past buffer"}
		}
		hops++
		if hops > maxLabelHops {
			return 0, &ErrMalformed{Reason: "too many label hops"}
		}

		b := buf[reader]
		switch {
		case b&0xC0 == 0xC0:
			if reader+1 >= len(buf) {
				return 0, &ErrMalformed{Reason: "compression pointer runs past buffer"}
			}
			offset := int(b&0x3F)<<8 | int(buf[reader+1])
			if firstJump < 0 {
				firstJump = reader + 2
			}
			if offset < headerSize || offset >= len(buf) {
				return 0, &ErrMalformed{Reason: "compression pointer out of [12, msg_size) range"}
			}
			reader = offset
		case b&0xC0 == 0x00:
			if b == 0 {
				if firstJump >= 0 {
					return firstJump, nil
				}
				return reader + 1, nil
			}
			length := int(b)
			if reader+1+length >= len(buf) {
				return 0, &ErrMalformed{Reason: "label runs past buffer"}
			}
			reader += 1 + length
		default:
			return 0, &ErrMalformed{Reason: "reserved label-type bits"}
		}
	}
}
