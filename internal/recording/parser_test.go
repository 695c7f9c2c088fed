package recording

import (
	"testing"

	"github.com/wardeck/wardeck/internal/model"
)

func buildFrames(frames []Frame) []byte {
	var buf []byte
	for _, f := range frames {
		buf = append(buf, EncodeFrame(f)...)
	}
	return buf
}

func TestFromBytesParsesSequentialFrames(t *testing.T) {
	frames := []Frame{
		{TimestampMs: 1000, Type: model.FrameOutput, Payload: []byte("first")},
		{TimestampMs: 2500, Type: model.FrameOutput, Payload: []byte("second")},
	}
	rec, err := FromBytes(buildFrames(frames), 0)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if len(rec.Frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(rec.Frames))
	}
	if string(rec.Frames[1].Payload) != "second" {
		t.Fatalf("got %q", rec.Frames[1].Payload)
	}
}

func TestFromBytesPropagatesHardError(t *testing.T) {
	frames := []Frame{{TimestampMs: 1, Type: model.FrameOutput, Payload: []byte("ok")}}
	data := append(buildFrames(frames), 0xFF, 0xFF)
	if _, err := FromBytes(data, 0); err == nil {
		t.Fatal("expected error from trailing truncated frame")
	}
}

func TestFromBytesEmptyInput(t *testing.T) {
	rec, err := FromBytes(nil, 0)
	if err != nil {
		t.Fatalf("empty input should parse to zero frames: %v", err)
	}
	if len(rec.Frames) != 0 {
		t.Fatalf("got %d frames, want 0", len(rec.Frames))
	}
}

func TestBuildKeyframesIndexesEveryNthOutputFrame(t *testing.T) {
	var frames []Frame
	for i := 0; i < 120; i++ {
		frames = append(frames, Frame{TimestampMs: uint64(i * 100), Type: model.FrameOutput, Payload: []byte{byte(i)}})
	}
	rec, err := FromBytes(buildFrames(frames), 50)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	// frames at output index 0, 50, 100 should be indexed.
	if idx := rec.keyframeAtOrBefore(0); idx != 0 {
		t.Fatalf("keyframe at ts=0: got %d, want 0", idx)
	}
	if idx := rec.keyframeAtOrBefore(10000); idx != 100 {
		t.Fatalf("keyframe at ts=10000: got %d, want 100", idx)
	}
}

func TestBuildKeyframesFallsBackToFirstFrameWithNoOutput(t *testing.T) {
	frames := []Frame{{TimestampMs: 5, Type: model.FrameEvent, Payload: []byte(`{}`)}}
	rec, err := FromBytes(buildFrames(frames), 50)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if idx := rec.keyframeAtOrBefore(5); idx != 0 {
		t.Fatalf("got %d, want 0", idx)
	}
}

func TestLastResizeBeforeFindsMostRecentResize(t *testing.T) {
	frames := []Frame{
		{TimestampMs: 1, Type: model.FrameResize, Payload: EncodeResizePayload(80, 24)},
		{TimestampMs: 2, Type: model.FrameOutput, Payload: []byte("x")},
		{TimestampMs: 3, Type: model.FrameResize, Payload: EncodeResizePayload(120, 40)},
		{TimestampMs: 4, Type: model.FrameOutput, Payload: []byte("y")},
	}
	rec, err := FromBytes(buildFrames(frames), 0)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	cols, rows, ok := rec.LastResizeBefore(4)
	if !ok || cols != 120 || rows != 40 {
		t.Fatalf("got %dx%d ok=%v, want 120x40 true", cols, rows, ok)
	}
}

func TestLastResizeBeforeNoResizeFound(t *testing.T) {
	frames := []Frame{{TimestampMs: 1, Type: model.FrameOutput, Payload: []byte("x")}}
	rec, err := FromBytes(buildFrames(frames), 0)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if _, _, ok := rec.LastResizeBefore(1); ok {
		t.Fatal("expected ok=false")
	}
}
