package chamberproto

import "testing"

func TestEncodeAuthBlockRoundTrip(t *testing.T) {
	block := EncodeAuthBlock("12345678")

	if len(block) != AuthBlockSize {
		t.Fatalf("expected %d bytes, got %d", AuthBlockSize, len(block))
	}

	sentinel, code, user := DecodeAuthBlock(block)
	if sentinel != authSentinel {
		t.Errorf("sentinel = %v, want %v", sentinel, authSentinel)
	}
	if code != "12345678" {
		t.Errorf("access code = %q, want %q", code, "12345678")
	}
	if user != "bblp" {
		t.Errorf("username = %q, want %q", user, "bblp")
	}
}

func TestEncodeAuthBlockTruncatesLongAccessCode(t *testing.T) {
	long := "0123456789012345678901234567890123456789" // 40 chars
	block := EncodeAuthBlock(long)

	_, code, _ := DecodeAuthBlock(block)
	if code != long[:32] {
		t.Errorf("expected truncated code %q, got %q", long[:32], code)
	}
}

func TestEncodeAuthBlockLayout(t *testing.T) {
	block := EncodeAuthBlock("ac")

	if block[0] != 0x40 || block[1] != 0x30 || block[2] != 0x00 || block[3] != 0x00 {
		t.Errorf("unexpected sentinel bytes: % x", block[0:4])
	}
	for i := 4; i < 32; i++ {
		if block[i] != 0 {
			t.Errorf("expected zero at byte %d, got %d", i, block[i])
		}
	}
	if string(block[32:34]) != "ac" {
		t.Errorf("expected access code at [32:34], got %q", block[32:34])
	}
	if block[34] != 0 {
		t.Errorf("expected NUL padding after access code")
	}
}
