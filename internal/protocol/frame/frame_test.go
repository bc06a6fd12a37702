package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	body := []byte{0x08, 0x9e, 0x10, 0x12, 0x05, 0x0d, 0x00, 0x00, 0x80, 0x3f}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, body, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	raw := buf.Bytes()
	if raw[0] != 0x0D || raw[1] != 0xA4 || raw[2] != byte(len(body)) || raw[3] != 0 || raw[4] != 0 {
		t.Fatalf("unexpected container header: % x", raw[:HeaderLen])
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(out, body) {
		t.Fatalf("body mismatch: % x", out)
	}
}

func TestHeaderLengthIsLittleEndian24(t *testing.T) {
	h := EncodeHeader(0x0a0b0c)
	if !bytes.Equal(h, []byte{0x0D, 0xA4, 0x0c, 0x0b, 0x0a}) {
		t.Fatalf("unexpected header: % x", h)
	}
	n, err := DecodeHeader(h)
	if err != nil || n != 0x0a0b0c {
		t.Fatalf("decode header n=%#x err=%v", n, err)
	}
}

func TestReadFrameMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x0D, 0xA4}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestReadFrameInvalidMagic(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x0D, 0xA5, 0, 0, 0}), DefaultLimits())
	if !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestReadFrameShortBody(t *testing.T) {
	raw := append(EncodeHeader(4), 0x01, 0x02)
	_, err := ReadFrame(bytes.NewReader(raw), DefaultLimits())
	if !errors.Is(err, ErrShortBody) {
		t.Fatalf("expected ErrShortBody, got %v", err)
	}
}

func TestLimitsEnforced(t *testing.T) {
	limits := Limits{MaxBodyBytes: 2}
	if err := WriteFrame(&bytes.Buffer{}, []byte{1, 2, 3}, limits); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge on write, got %v", err)
	}
	raw := append(EncodeHeader(3), 1, 2, 3)
	if _, err := ReadFrame(bytes.NewReader(raw), limits); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge on read, got %v", err)
	}
}

func TestEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil, DefaultLimits()); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil || len(out) != 0 {
		t.Fatalf("unexpected empty body read out=%v err=%v", out, err)
	}
}
