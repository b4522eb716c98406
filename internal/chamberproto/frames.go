// Package chamberproto implements the Chamber Image wire protocol: the
// 80-byte authentication block sent once per upstream session and the
// 16-byte header that precedes every JPEG frame.
package chamberproto

import "errors"

// AuthBlockSize is the fixed size of the authentication record sent once
// after the upstream TLS handshake.
const AuthBlockSize = 80

// FrameHeaderSize is the fixed size of the header preceding every frame.
const FrameHeaderSize = 16

// MaxFrameSize is the upper bound on a frame's payload length.
const MaxFrameSize = 1 << 20 // 1 MiB

// authSentinel is the constant 4-byte value at the start of the auth block.
var authSentinel = [4]byte{0x40, 0x30, 0x00, 0x00}

// authUsername is the fixed username field of the auth block.
const authUsername = "bblp"

// Errors returned by the decoder. All are terminal for the upstream link.
var (
	ErrShortRead        = errors.New("chamberproto: short read")
	ErrLengthOutOfRange = errors.New("chamberproto: frame length out of range")
	ErrBadMagic         = errors.New("chamberproto: bad frame magic")
)

// StrictMagic makes DecodeFrameHeader reject an unrecognized reserved-magic
// field instead of logging and continuing. The reference printer firmware
// has been observed sending values other than FrameMagic without it being
// a framing error, so the default stays permissive.
var StrictMagic = false

// FrameMagic is the reserved-magic value the reference printer firmware
// currently emits in frame headers. A mismatch is logged by the caller,
// not rejected here, unless StrictMagic is set.
var FrameMagic = [4]byte{0x00, 0x00, 0x00, 0x00}
