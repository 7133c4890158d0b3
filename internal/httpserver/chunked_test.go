package httpserver

import "testing"

func TestChunkedDecoderSimple(t *testing.T) {
	d := NewChunkedDecoder()
	in := []byte("4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n")
	out, err := d.Decode(nil, in, false)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if string(out) != "Wikipedia" {
		t.Errorf("decoded = %q, want \"Wikipedia\"", out)
	}
	if !d.Done() {
		t.Error("Done() = false after terminating chunk")
	}
}

func TestChunkedDecoderAcrossMultipleCalls(t *testing.T) {
	d := NewChunkedDecoder()
	var out []byte
	var err error
	for _, part := range []string{"4\r\nWi", "ki\r\n0", "\r\n\r\n"} {
		out, err = d.Decode(out, []byte(part), false)
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
	}
	if string(out) != "Wiki" {
		t.Errorf("decoded = %q, want \"Wiki\"", out)
	}
	if !d.Done() {
		t.Error("Done() = false after split terminating chunk")
	}
}

func TestChunkedDecoderMonitorOnlyDropsBytes(t *testing.T) {
	d := NewChunkedDecoder()
	out, err := d.Decode(nil, []byte("4\r\ntest\r\n0\r\n\r\n"), true)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("monitorOnly decode appended bytes: %q", out)
	}
	if !d.Done() {
		t.Error("Done() = false in monitorOnly mode")
	}
}

func TestChunkedDecoderMalformedSize(t *testing.T) {
	d := NewChunkedDecoder()
	_, err := d.Decode(nil, []byte("zz\r\n"), false)
	if err != ErrChunkedSyntax {
		t.Errorf("err = %v, want ErrChunkedSyntax", err)
	}
}

func TestChunkedCoderEncode(t *testing.T) {
	var c ChunkedCoder
	out := c.Encode(nil, []byte("abc"), false)
	if string(out) != "3\r\nabc\r\n" {
		t.Errorf("Encode = %q", out)
	}
	out = c.Encode(out, nil, true)
	if string(out) != "3\r\nabc\r\n0\r\n\r\n" {
		t.Errorf("Encode with eof = %q", out)
	}
}
