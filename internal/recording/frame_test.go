package recording

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/wardeck/wardeck/internal/model"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	f := Frame{TimestampMs: 123456, Type: model.FrameOutput, Flags: 0, Payload: []byte("hello world")}
	buf := EncodeFrame(f)
	if len(buf) != model.FrameHeaderLen+len(f.Payload) {
		t.Fatalf("unexpected encoded length %d", len(buf))
	}
	got, n, err := DecodeFrame(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d, want %d", n, len(buf))
	}
	if got.TimestampMs != f.TimestampMs || got.Type != f.Type || !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestDecodeFrameEmptyBuffer(t *testing.T) {
	_, _, err := DecodeFrame(nil)
	if err != ErrTruncatedHeader {
		t.Fatalf("got %v, want ErrTruncatedHeader", err)
	}
}

func TestDecodeFrameOneByte(t *testing.T) {
	_, _, err := DecodeFrame([]byte{0x01})
	if err != ErrTruncatedHeader {
		t.Fatalf("got %v, want ErrTruncatedHeader", err)
	}
}

func TestDecodeFrameFourteenZeroBytes(t *testing.T) {
	buf := make([]byte, 14)
	_, _, err := DecodeFrame(buf)
	if err != ErrUnknownFrameType {
		t.Fatalf("got %v, want ErrUnknownFrameType (type byte 0 is not a valid frame type)", err)
	}
}

func TestDecodeFrameFFFilled(t *testing.T) {
	buf := bytes.Repeat([]byte{0xFF}, 14)
	_, _, err := DecodeFrame(buf)
	if err != ErrUnknownFrameType {
		t.Fatalf("got %v, want ErrUnknownFrameType", err)
	}
}

func TestDecodeFrameUnknownType(t *testing.T) {
	buf := make([]byte, 14)
	buf[8] = 0x09
	_, _, err := DecodeFrame(buf)
	if err != ErrUnknownFrameType {
		t.Fatalf("got %v, want ErrUnknownFrameType", err)
	}
}

func TestDecodeFramePayloadOverrun(t *testing.T) {
	buf := make([]byte, 14)
	buf[8] = byte(model.FrameOutput)
	binary.LittleEndian.PutUint32(buf[10:14], 0xFFFFFFFF)
	_, _, err := DecodeFrame(buf)
	if err != ErrPayloadOverrun {
		t.Fatalf("got %v, want ErrPayloadOverrun", err)
	}
}

func TestDecodeFramePayloadLengthExceedsRemaining(t *testing.T) {
	buf := make([]byte, 14)
	buf[8] = byte(model.FrameOutput)
	binary.LittleEndian.PutUint32(buf[10:14], 5)
	_, _, err := DecodeFrame(buf)
	if err != ErrPayloadOverrun {
		t.Fatalf("got %v, want ErrPayloadOverrun", err)
	}
}

func TestResizePayloadRoundTrip(t *testing.T) {
	payload := EncodeResizePayload(120, 40)
	cols, rows, err := DecodeResizePayload(payload)
	if err != nil {
		t.Fatalf("decode resize: %v", err)
	}
	if cols != 120 || rows != 40 {
		t.Fatalf("got %dx%d, want 120x40", cols, rows)
	}
}

func TestResizePayloadWrongLength(t *testing.T) {
	if _, _, err := DecodeResizePayload([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error on short resize payload")
	}
}
