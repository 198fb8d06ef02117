package wire

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
)

// Compression is a pluggable LZ-class codec for payloads above
// model.CompressionThreshold (spec.md §4.1). The corpus this module was
// grounded on carries no LZ4/snappy/zstd dependency anywhere (checked
// across every example repo's go.mod/go.sum), so the codec is built on
// compress/flate — see DESIGN.md for the full justification.
type Compression struct {
	level int
}

// NewCompression builds a Compression using flate at the given level
// (flate.DefaultCompression if level is 0).
func NewCompression(level int) *Compression {
	if level == 0 {
		level = flate.DefaultCompression
	}
	return &Compression{level: level}
}

// Compress returns the compressed form of src prefixed with a 4-byte
// big-endian uncompressed_len, as required by spec.md §4.1's decode-time
// verification. ok is false if compression did not shrink the payload.
func (c *Compression) Compress(src []byte) (out []byte, ok bool) {
	var buf bytes.Buffer
	buf.Write(make([]byte, 4))
	binary.BigEndian.PutUint32(buf.Bytes()[0:4], uint32(len(src)))

	w, err := flate.NewWriter(&buf, c.level)
	if err != nil {
		return nil, false
	}
	if _, err := w.Write(src); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}

	if buf.Len() >= len(src) {
		return nil, false
	}
	return buf.Bytes(), true
}

// Decompress verifies the embedded uncompressed_len and inflates src.
func (c *Compression) Decompress(src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, fmt.Errorf("wire: compressed payload too short for header")
	}
	uncompressedLen := binary.BigEndian.Uint32(src[0:4])

	r := flate.NewReader(bytes.NewReader(src[4:]))
	defer r.Close()

	out := GetPayload(int(uncompressedLen))
	n, err := io.ReadFull(r, out)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("wire: decompress failed: %w", err)
	}
	if uint32(n) != uncompressedLen {
		return nil, fmt.Errorf("wire: decompressed size %d does not match recorded length %d", n, uncompressedLen)
	}
	// Confirm the stream is fully consumed (no trailing garbage).
	var extra [1]byte
	if n2, _ := r.Read(extra[:]); n2 != 0 {
		return nil, fmt.Errorf("wire: decompressed size exceeds recorded length")
	}
	return out[:n], nil
}
