package chamberproto

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/karaktaka/pandaproxy/internal/netutil"
)

// DecodeFrameHeader reads and validates the 16-byte frame header: a
// little-endian payload length, a 4-byte reserved magic, and 8 bytes of
// ignored metadata. The caller must then read exactly payloadLen bytes.
func DecodeFrameHeader(r io.Reader) (payloadLen uint32, magic [4]byte, err error) {
	hdr, err := netutil.ReadFull(r, FrameHeaderSize)
	if err != nil {
		return 0, magic, fmt.Errorf("%w: %v", ErrShortRead, err)
	}

	payloadLen = binary.LittleEndian.Uint32(hdr[0:4])
	copy(magic[:], hdr[4:8])
	// hdr[8:16] is ignored metadata; intentionally not validated.

	if payloadLen < 1 || payloadLen > MaxFrameSize {
		return 0, magic, ErrLengthOutOfRange
	}

	if StrictMagic && magic != FrameMagic {
		return 0, magic, ErrBadMagic
	}

	return payloadLen, magic, nil
}

// ReadFramePayload reads exactly n bytes of frame payload.
func ReadFramePayload(r io.Reader, n uint32) ([]byte, error) {
	buf, err := netutil.ReadFull(r, int(n))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	return buf, nil
}

// EncodeFrame builds the 16-byte header plus payload for a frame ready to be
// fanned out to subscribers. The reserved magic is copied from whatever was
// observed on the upstream link; the upstream metadata bytes are not
// carried over, so the header is not byte-identical to the upstream one.
func EncodeFrame(magic [4]byte, payload []byte) []byte {
	out := make([]byte, FrameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(payload)))
	copy(out[4:8], magic[:])
	// out[8:16] stays zero; the ignored metadata field carries no meaning
	// downstream consumers depend on.
	copy(out[FrameHeaderSize:], payload)
	return out
}

// WriteFrame writes a full frame (header + payload) to w.
func WriteFrame(w io.Writer, magic [4]byte, payload []byte) error {
	_, err := w.Write(EncodeFrame(magic, payload))
	return err
}
