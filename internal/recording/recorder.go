package recording

import (
	"io"
	"regexp"

	"github.com/wardeck/wardeck/internal/model"
	"github.com/wardeck/wardeck/internal/security"
)

// Recorder serializes frames to an underlying writer in chronological
// order, optionally redacting Output/Input payloads before encoding.
type Recorder struct {
	w              io.Writer
	redact         bool
	extraRedactors []*regexp.Regexp
}

// NewRecorder creates a Recorder over w. When redact is true,
// Output/Input frame payloads are rewritten through the built-in
// secret redactor plus extra before being written, per spec.md §4.6
// "Optional redaction".
func NewRecorder(w io.Writer, redact bool, extra []*regexp.Regexp) *Recorder {
	return &Recorder{w: w, redact: redact, extraRedactors: extra}
}

// WriteFrame encodes and writes one frame, applying redaction first
// when configured. Redaction rewrites the payload before the header
// is built, so payload_len always matches the (possibly shrunk or
// grown) redacted bytes.
func (r *Recorder) WriteFrame(f Frame) error {
	if r.redact && (f.Type == model.FrameOutput || f.Type == model.FrameInput) {
		redacted := security.RedactRecordingPayload(string(f.Payload), r.extraRedactors)
		f.Payload = []byte(redacted)
	}
	_, err := r.w.Write(EncodeFrame(f))
	return err
}
