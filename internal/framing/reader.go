// Package framing decodes a length-prefixed protobuf stream arriving as
// arbitrary byte chunks into an ordered sequence of whole message payloads
// (spec.md §4.A). It is a direct port of the varint-prefixed framing used by
// the original Python ndgr_client.protobuf_stream_reader.ProtobufStreamReader
// (_examples/original_source/ndgr_client/protobuf_stream_reader.py), itself
// a port of github.com/rinsuki-lab/ndgr-reader's protobuf-stream-reader.ts.
package framing

import (
	"github.com/nicolive/ndgr-client/internal/ndgrerr"
)

// maxVarintBytes is the widest a base-128 varint may be before it is
// considered corrupt (spec.md §4.A: "Maximum varint width is 10 bytes").
const maxVarintBytes = 10

// Reader accumulates chunks of bytes and extracts whole length-prefixed
// frames from them. It is not safe for concurrent use; each component that
// owns a Reader (fetch.Stream) serializes access to it internally.
type Reader struct {
	buf []byte
}

// New returns an empty Reader.
func New() *Reader {
	return &Reader{}
}

// Append adds a newly received chunk to the internal buffer.
func (r *Reader) Append(chunk []byte) {
	r.buf = append(r.buf, chunk...)
}

// Extract returns the next whole frame payload, or (nil, false) if the
// buffer currently holds only a partial frame. A successful extraction
// advances the buffer exactly once. A corrupt varint (one that overflows
// the maximum width) is reported as a *ndgrerr.ProtocolError.
func (r *Reader) Extract() ([]byte, bool, error) {
	length, offset, ok, err := readVarint(r.buf)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	if offset+length > len(r.buf) {
		// Declared length exceeds buffered bytes: a partial frame, not an
		// error (spec.md §4.A "Failure mode").
		return nil, false, nil
	}

	frame := make([]byte, length)
	copy(frame, r.buf[offset:offset+length])

	remaining := len(r.buf) - (offset + length)
	copy(r.buf, r.buf[offset+length:])
	r.buf = r.buf[:remaining]

	return frame, true, nil
}

// readVarint decodes a base-128 varint from the front of buf. It tolerates
// a partial prefix (returns ok=false rather than an error) and rejects a
// prefix wider than maxVarintBytes as corruption.
func readVarint(buf []byte) (value int, offset int, ok bool, err error) {
	var shift uint
	for {
		if offset >= len(buf) {
			return 0, 0, false, nil
		}
		if offset >= maxVarintBytes {
			return 0, 0, false, ndgrerr.NewProtocol("varint exceeds maximum width of %d bytes", maxVarintBytes)
		}
		b := buf[offset]
		value |= int(b&0x7F) << shift
		offset++
		shift += 7
		if b&0x80 == 0 {
			return value, offset, true, nil
		}
	}
}
