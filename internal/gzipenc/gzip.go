// Package gzipenc is the C2 GZIP encoder used for outgoing publish bodies
// when compression is profitable (spec §4.2), plus the C3 CRC-32 it frames
// with.
//
// Grounded on original_source/core/pbgzip_compress.c: the ten-byte gzip
// header, the minimum-improvement-ratio skip decision (I4), and the trailer
// layout (little-endian CRC-32 then little-endian uncompressed length) are
// ported verbatim from the C routine. The original links miniz's tdefl_*
// for the raw DEFLATE step; here that's github.com/klauspost/compress/flate
// (promoted from an indirect dependency of the teacher's go-server/ws
// modules), which implements the same DEFLATE format without indirecting
// through a 3rd build of zlib.
//
// CRC-32 itself (original_source/lib/pbcrc32.c) is one place this module
// deliberately uses the standard library instead: pbcrc32.c is a textbook
// byte-at-a-time table implementation of the IEEE 802.3 polynomial, bit-for-
// bit identical to hash/crc32.ChecksumIEEE, and no library in this pack
// implements CRC-32 differently or better — there is nothing to "wire" here
// beyond what every Go toolchain already ships.
package gzipenc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/compress/flate"
)

// MinCompressionRatio is the minimal acceptable compression ratio (I4):
// at or below this, the engine must send the plaintext body uncompressed.
const MinCompressionRatio = 0.10

const (
	headerSize  = 10
	trailerSize = 8
)

// ErrBadCompression is returned when DEFLATE fails to consume the entire
// input in one pass.
var ErrBadCompression = fmt.Errorf("gzipenc: compressor did not consume entire input")

// Result is the outcome of a Compress call.
type Result struct {
	// Framed holds the full gzip container (header + deflate + trailer)
	// when Compressed is true.
	Framed []byte
	// Compressed is false when the achieved ratio did not clear
	// MinCompressionRatio; the caller must send the plaintext body with no
	// Content-Encoding header (spec §4.2 policy, Design Notes: POST_GZIP
	// falls back to POST silently on incompressible bodies).
	Compressed bool
	// Ratio is (uncompressed-packed)/uncompressed, for logging.
	Ratio float64
}

// Compress gzip-frames message, skipping the result if the gain is not
// above MinCompressionRatio. It returns ErrBadCompression if deflate does
// not consume the whole input, and a wrapped error if the deflate writer
// itself fails; a merely-poor ratio is not an error and instead produces
// Result{Compressed: false}.
func Compress(message []byte) (Result, error) {
	unpackedSize := len(message)

	var deflated bytes.Buffer
	w, err := flate.NewWriter(&deflated, flate.DefaultCompression)
	if err != nil {
		return Result{}, fmt.Errorf("gzipenc: new flate writer: %w", err)
	}
	n, err := w.Write(message)
	if err != nil {
		return Result{}, fmt.Errorf("gzipenc: deflate write: %w", err)
	}
	if err := w.Close(); err != nil {
		return Result{}, fmt.Errorf("gzipenc: deflate close: %w", err)
	}
	if n != unpackedSize {
		return Result{}, ErrBadCompression
	}

	packedSize := headerSize + deflated.Len() + trailerSize
	if unpackedSize == 0 {
		return Result{Compressed: false, Ratio: 0}, nil
	}
	ratio := float64(unpackedSize-packedSize) / float64(unpackedSize)
	if ratio <= MinCompressionRatio {
		return Result{Compressed: false, Ratio: ratio}, nil
	}

	buf := make([]byte, 0, packedSize)
	buf = append(buf, 0x1F, 0x8B, 0x08, 0, 0, 0, 0, 0, 0, 0)
	buf = append(buf, deflated.Bytes()...)

	var trailer [trailerSize]byte
	binary.LittleEndian.PutUint32(trailer[0:4], crc32.ChecksumIEEE(message))
	binary.LittleEndian.PutUint32(trailer[4:8], uint32(unpackedSize))
	buf = append(buf, trailer[:]...)

	return Result{Framed: buf, Compressed: true, Ratio: ratio}, nil
}

// Decompress is the reference inflater used by tests (spec §8 P4): it
// validates the gzip framing this package produces and returns the original
// bytes plus the trailer CRC-32 for comparison against crc32.ChecksumIEEE of
// the decompressed output.
func Decompress(framed []byte) (data []byte, trailerCRC uint32, trailerLen uint32, err error) {
	if len(framed) < headerSize+trailerSize {
		return nil, 0, 0, fmt.Errorf("gzipenc: framed input too short")
	}
	if framed[0] != 0x1F || framed[1] != 0x8B || framed[2] != 0x08 {
		return nil, 0, 0, fmt.Errorf("gzipenc: bad gzip header")
	}
	body := framed[headerSize : len(framed)-trailerSize]
	trailer := framed[len(framed)-trailerSize:]
	trailerCRC = binary.LittleEndian.Uint32(trailer[0:4])
	trailerLen = binary.LittleEndian.Uint32(trailer[4:8])

	r := flate.NewReader(bytes.NewReader(body))
	defer r.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, 0, 0, fmt.Errorf("gzipenc: inflate: %w", err)
	}
	return out.Bytes(), trailerCRC, trailerLen, nil
}
