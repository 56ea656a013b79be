package resolver

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/adred-codev/pubnub-go/internal/dnscodec"
)

// startFakeDNS runs a one-shot UDP server that reads a single query and
// replies with the response built by respond, returning its address.
func startFakeDNS(t *testing.T, respond func(query []byte) []byte) string {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 512)
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		reply := respond(buf[:n])
		if reply != nil {
			_, _ = conn.WriteTo(reply, addr)
		}
	}()

	return conn.LocalAddr().String()
}

func buildReply(t *testing.T, query []byte, rdata []byte, rrType uint16) []byte {
	t.Helper()
	out := append([]byte(nil), query...)
	binary.BigEndian.PutUint16(out[2:4], 0x8180)
	binary.BigEndian.PutUint16(out[6:8], 1)

	var rr []byte
	rr = append(rr, 0xC0, 0x0C)
	var typeClassTTL [8]byte
	binary.BigEndian.PutUint16(typeClassTTL[0:2], rrType)
	binary.BigEndian.PutUint16(typeClassTTL[2:4], dnscodec.ClassIN)
	binary.BigEndian.PutUint32(typeClassTTL[4:8], 300)
	rr = append(rr, typeClassTTL[:]...)
	var rdlen [2]byte
	binary.BigEndian.PutUint16(rdlen[:], uint16(len(rdata)))
	rr = append(rr, rdlen[:]...)
	rr = append(rr, rdata...)

	return append(out, rr...)
}

func TestResolveReturnsFirstAddress(t *testing.T) {
	addr := startFakeDNS(t, func(query []byte) []byte {
		return buildReply(t, query, []byte{93, 184, 216, 34}, dnscodec.TypeA)
	})

	r := New(addr, 5, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ans, err := r.Resolve(ctx, "example.com", dnscodec.TypeA)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ans.Addr.String() != "93.184.216.34" {
		t.Fatalf("got %s want 93.184.216.34", ans.Addr)
	}
}

func TestResolveTimesOutWhenServerSilent(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer conn.Close()

	r := New(conn.LocalAddr().String(), 5, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := r.Resolve(ctx, "example.com", dnscodec.TypeA); err == nil {
		t.Fatalf("expected timeout error, got nil")
	}
}

func TestResolveRejectsMalformedReply(t *testing.T) {
	addr := startFakeDNS(t, func(query []byte) []byte {
		junk := append([]byte(nil), query...)
		junk[3] |= 0x02 // RCODE=2 SERVFAIL
		return junk
	})

	r := New(addr, 5, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := r.Resolve(ctx, "example.com", dnscodec.TypeA); err == nil {
		t.Fatalf("expected error for SERVFAIL reply")
	}
}

func TestResolveLiteralIPv4(t *testing.T) {
	ans, ok := ResolveLiteral("1.2.3.4")
	if !ok {
		t.Fatalf("expected literal IPv4 to parse")
	}
	if ans.Type != dnscodec.TypeA || ans.Addr.String() != "1.2.3.4" {
		t.Fatalf("unexpected answer: %+v", ans)
	}
}

func TestResolveLiteralIPv6Bracketed(t *testing.T) {
	ans, ok := ResolveLiteral("[::1]")
	if !ok {
		t.Fatalf("expected bracketed literal IPv6 to parse")
	}
	if ans.Type != dnscodec.TypeAAAA {
		t.Fatalf("expected AAAA type, got %d", ans.Type)
	}
}

func TestResolveLiteralRejectsHostname(t *testing.T) {
	if _, ok := ResolveLiteral("example.com"); ok {
		t.Fatalf("expected hostname to fail literal parse")
	}
}
