package recording

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/wardeck/wardeck/internal/model"
)

// AsciicastHeader is the first NDJSON line of an asciicast v2 export.
type AsciicastHeader struct {
	Version  int     `json:"version"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Title    string  `json:"title,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// ExportOptions configures asciicast/HTML export.
type ExportOptions struct {
	Title         string
	DefaultWidth  int
	DefaultHeight int
}

// ToAsciicast renders the recording as asciicast v2 NDJSON text: a
// header object line followed by one `[seconds, kind, payload]` line
// per Output/Resize/Marker frame, time rebased to the first frame
// (spec.md §4.6, Scenario D).
func ToAsciicast(rec *Recording, opts ExportOptions) (string, error) {
	width, height := opts.DefaultWidth, opts.DefaultHeight
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	for _, f := range rec.Frames {
		if f.Type == model.FrameResize {
			if c, r, err := DecodeResizePayload(f.Payload); err == nil {
				width, height = int(c), int(r)
			}
		}
	}

	var baseTs uint64
	if len(rec.Frames) > 0 {
		baseTs = rec.Frames[0].TimestampMs
	}

	var sb strings.Builder
	header := AsciicastHeader{Version: 2, Width: width, Height: height, Title: opts.Title}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("marshal asciicast header: %w", err)
	}
	sb.Write(headerJSON)
	sb.WriteByte('\n')

	for _, f := range rec.Frames {
		var kind, payload string
		switch f.Type {
		case model.FrameOutput:
			kind, payload = "o", string(f.Payload)
		case model.FrameResize:
			c, r, err := DecodeResizePayload(f.Payload)
			if err != nil {
				continue
			}
			kind, payload = "r", fmt.Sprintf("%dx%d", c, r)
		case model.FrameMarker:
			kind, payload = "m", string(f.Payload)
		default:
			continue
		}
		seconds := float64(f.TimestampMs-baseTs) / 1000.0
		line, err := json.Marshal([]any{seconds, kind, payload})
		if err != nil {
			return "", fmt.Errorf("marshal asciicast event: %w", err)
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

const asciicastPlayerCDN = "https://cdn.jsdelivr.net/npm/asciinema-player@3.6.3/dist/bundle/asciinema-player.min.js"

// ToHTML wraps an asciicast export in a self-contained HTML document
// embedding the cast text and loading a player script from a pinned
// CDN (spec.md §4.6).
func ToHTML(rec *Recording, opts ExportOptions) (string, error) {
	cast, err := ToAsciicast(rec, opts)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">\n")
	sb.WriteString(fmt.Sprintf("<title>%s</title>\n", htmlEscape(opts.Title)))
	sb.WriteString(fmt.Sprintf("<script src=%q></script>\n", asciicastPlayerCDN))
	sb.WriteString("</head><body>\n")
	sb.WriteString("<script type=\"application/x-asciicast\" id=\"cast-data\">\n")
	sb.WriteString(cast)
	sb.WriteString("</script>\n")
	sb.WriteString("<div id=\"player\"></div>\n")
	sb.WriteString("<script>AsciinemaPlayer.create(document.getElementById('cast-data').textContent, document.getElementById('player'));</script>\n")
	sb.WriteString("</body></html>\n")
	return sb.String(), nil
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// ParseDurationMs parses a duration string in the forms spec.md §4.6
// names: "1h30m", "90s", "1.5s", or a bare integer meaning raw
// milliseconds ("1500" -> 1500ms). Within a compound expression, a
// trailing numeric component with no unit suffix is seconds (e.g.
// "1m30" -> 90000ms, the 30 being seconds).
func ParseDurationMs(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if ms, err := strconv.ParseUint(s, 10, 64); err == nil {
		return int64(ms), nil
	}

	var totalMs float64
	var numBuf strings.Builder
	for _, ch := range s {
		if (ch >= '0' && ch <= '9') || ch == '.' {
			numBuf.WriteRune(ch)
			continue
		}
		val, err := strconv.ParseFloat(numBuf.String(), 64)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: invalid component %q", s, numBuf.String())
		}
		numBuf.Reset()
		switch ch {
		case 'h':
			totalMs += val * 3_600_000
		case 'm':
			totalMs += val * 60_000
		case 's':
			totalMs += val * 1_000
		default:
			return 0, fmt.Errorf("parse duration %q: unknown unit %q", s, ch)
		}
	}
	if numBuf.Len() > 0 {
		val, err := strconv.ParseFloat(numBuf.String(), 64)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: invalid trailing component %q", s, numBuf.String())
		}
		totalMs += val * 1_000
	}
	return int64(totalMs), nil
}
