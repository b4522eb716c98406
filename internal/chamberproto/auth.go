package chamberproto

// EncodeAuthBlock builds the 80-byte auth block for the given access code.
// Layout: [0:4] sentinel, [4:32] zero, [32:64] access code (NUL-padded,
// truncated if longer than 32 bytes), [64:80] "bblp" (NUL-padded).
func EncodeAuthBlock(accessCode string) [AuthBlockSize]byte {
	var block [AuthBlockSize]byte

	copy(block[0:4], authSentinel[:])
	// block[4:32] stays zero.

	code := []byte(accessCode)
	if len(code) > 32 {
		code = code[:32]
	}
	copy(block[32:64], code)

	copy(block[64:80], authUsername)

	return block
}

// DecodeAuthBlock parses an 80-byte auth block back into its access code and
// username fields, stripping NUL padding. Used by tests to verify the
// encode/decode round trip; the proxy itself never decodes inbound auth
// blocks (it only sends them upstream).
func DecodeAuthBlock(block [AuthBlockSize]byte) (sentinel [4]byte, accessCode, username string) {
	copy(sentinel[:], block[0:4])
	accessCode = trimNUL(block[32:64])
	username = trimNUL(block[64:80])
	return
}

func trimNUL(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}
