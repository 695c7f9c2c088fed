// Package recording implements the Recording container and Replay
// engine of spec.md §4.6: frame encode/decode, the parser with its
// keyframe index, seek, playback, sinks and export. Grounded on
// wingthing's binary framing style (length-prefixed payloads over a
// fixed header) adapted to the wezterm_automata ".war" container
// described in original_source/_INDEX.md.
package recording

import (
	"encoding/binary"
	"fmt"

	"github.com/wardeck/wardeck/internal/model"
)

// Frame is one decoded unit of the recording container (spec.md §3).
type Frame struct {
	TimestampMs uint64
	Type        model.FrameType
	Flags       uint8
	Payload     []byte
}

// EncodeFrame serializes a frame into its 14-byte header followed by
// payload, per spec.md §4.6's writer specification.
func EncodeFrame(f Frame) []byte {
	buf := make([]byte, model.FrameHeaderLen+len(f.Payload))
	binary.LittleEndian.PutUint64(buf[0:8], f.TimestampMs)
	buf[8] = byte(f.Type)
	buf[9] = f.Flags
	binary.LittleEndian.PutUint32(buf[10:14], uint32(len(f.Payload)))
	copy(buf[14:], f.Payload)
	return buf
}

// ErrTruncatedHeader, ErrUnknownFrameType and ErrPayloadOverrun are the
// parser's three hard-error conditions (spec.md §9 "panic-free on
// arbitrary bytes").
var (
	ErrTruncatedHeader  = fmt.Errorf("truncated frame header")
	ErrUnknownFrameType = fmt.Errorf("unknown frame type byte")
	ErrPayloadOverrun   = fmt.Errorf("payload length overruns remaining buffer")
)

// DecodeFrame reads a single frame starting at data[0], returning the
// frame and the number of bytes consumed. It never panics: every
// length computation is bounds-checked before use.
func DecodeFrame(data []byte) (Frame, int, error) {
	if len(data) < model.FrameHeaderLen {
		return Frame{}, 0, ErrTruncatedHeader
	}
	ts := binary.LittleEndian.Uint64(data[0:8])
	typ := model.FrameType(data[8])
	switch typ {
	case model.FrameOutput, model.FrameResize, model.FrameEvent, model.FrameMarker, model.FrameInput:
	default:
		return Frame{}, 0, ErrUnknownFrameType
	}
	flags := data[9]
	payloadLen := binary.LittleEndian.Uint32(data[10:14])
	end := model.FrameHeaderLen + int(payloadLen)
	if payloadLen > uint32(len(data)-model.FrameHeaderLen) || end < 0 || end > len(data) {
		return Frame{}, 0, ErrPayloadOverrun
	}
	payload := make([]byte, payloadLen)
	copy(payload, data[model.FrameHeaderLen:end])
	return Frame{TimestampMs: ts, Type: typ, Flags: flags, Payload: payload}, end, nil
}

// EncodeResizePayload packs cols/rows into Resize's 4-byte payload.
func EncodeResizePayload(cols, rows uint16) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], cols)
	binary.LittleEndian.PutUint16(buf[2:4], rows)
	return buf
}

// DecodeResizePayload unpacks a Resize frame's payload. Hard error if
// the payload isn't exactly 4 bytes.
func DecodeResizePayload(payload []byte) (cols, rows uint16, err error) {
	if len(payload) != 4 {
		return 0, 0, fmt.Errorf("resize payload must be 4 bytes, got %d", len(payload))
	}
	return binary.LittleEndian.Uint16(payload[0:2]), binary.LittleEndian.Uint16(payload[2:4]), nil
}
