package recording

import "github.com/wardeck/wardeck/internal/model"

// KEYFRAME_INTERVAL is the recommended spacing between indexed output
// frames (spec.md §4.6), overridable via Recording options.
const KEYFRAME_INTERVAL = 50

// keyframe is one entry of the seek index: an output frame's position
// in Frames and its absolute timestamp.
type keyframe struct {
	frameIndex int
	timestamp  uint64
}

// Recording is a fully parsed .war container: its frames in order plus
// a keyframe index for fast seeking.
type Recording struct {
	Frames    []Frame
	keyframes []keyframe
}

// FromBytes parses a byte buffer into a Recording. Every hard error
// named in spec.md §4.6 ("truncated header", "unknown frame type",
// "payload length overruns remaining buffer") rejects the whole file;
// the parser never panics on malformed input (spec.md §9).
func FromBytes(data []byte, keyframeInterval int) (*Recording, error) {
	if keyframeInterval <= 0 {
		keyframeInterval = KEYFRAME_INTERVAL
	}
	var frames []Frame
	offset := 0
	for offset < len(data) {
		f, n, err := DecodeFrame(data[offset:])
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
		offset += n
	}

	rec := &Recording{Frames: frames}
	rec.buildKeyframes(keyframeInterval)
	return rec, nil
}

func (r *Recording) buildKeyframes(interval int) {
	outputCount := 0
	for i, f := range r.Frames {
		if f.Type != model.FrameOutput {
			continue
		}
		if outputCount%interval == 0 {
			r.keyframes = append(r.keyframes, keyframe{frameIndex: i, timestamp: f.TimestampMs})
		}
		outputCount++
	}
	if len(r.keyframes) == 0 && len(r.Frames) > 0 {
		r.keyframes = append(r.keyframes, keyframe{frameIndex: 0, timestamp: r.Frames[0].TimestampMs})
	}
}

// keyframeAtOrBefore returns the index into Frames of the latest
// keyframe whose timestamp is <= ts, or -1 if none qualifies.
func (r *Recording) keyframeAtOrBefore(ts uint64) int {
	best := -1
	for _, k := range r.keyframes {
		if k.timestamp <= ts {
			best = k.frameIndex
		} else {
			break
		}
	}
	return best
}

// LastResizeBefore returns the most recent Resize frame's cols/rows at
// or before frame index upTo (exclusive), if any.
func (r *Recording) LastResizeBefore(upTo int) (cols, rows uint16, ok bool) {
	for i := upTo - 1; i >= 0; i-- {
		if r.Frames[i].Type == model.FrameResize {
			c, rr, err := DecodeResizePayload(r.Frames[i].Payload)
			if err == nil {
				return c, rr, true
			}
		}
	}
	return 0, 0, false
}
