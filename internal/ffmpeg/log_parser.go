package ffmpeg

import (
	"strconv"
	"strings"
)

// ParseLogLevel extracts the log level from a worker diagnostic line.
// FFmpeg run with "-loglevel level+info" prefixes lines with "[info] message" or
// "[component @ 0x...] [level] message". Lines without a level are reported as info,
// except the stream-copy error summaries which ffmpeg prints without a prefix.
// The returned message keeps the component prefix and drops only the level tag.
func ParseLogLevel(line string) (level, msg string) {
	if len(line) < 3 || line[0] != '[' {
		return levelFromContent(line), line
	}

	end := strings.Index(line, "] ")
	if end == -1 {
		return "info", line
	}

	if tag := line[1:end]; isLogLevel(tag) {
		return tag, line[end+2:]
	}

	component, rest := line[:end+2], line[end+2:]
	if len(rest) > 2 && rest[0] == '[' {
		if next := strings.Index(rest, "] "); next != -1 && isLogLevel(rest[1:next]) {
			return rest[1:next], component + rest[next+2:]
		}
	}

	return levelFromContent(line), line
}

func levelFromContent(line string) string {
	lower := strings.ToLower(line)
	switch {
	case strings.HasPrefix(lower, "error "), strings.Contains(lower, "conversion failed"):
		return "error"
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "broken pipe"):
		return "error"
	default:
		return "info"
	}
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}

// Progress is one ffmpeg stats update ("frame= 120 fps= 30 ... speed=1.0x").
type Progress struct {
	Frame       int64
	FPS         float64
	BitrateKbps float64
	Speed       float64
	OutTime     string
}

// ParseProgress parses an ffmpeg stats line. ok is false for any other line.
func ParseProgress(line string) (p Progress, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "frame=") && !strings.HasPrefix(line, "size=") {
		return Progress{}, false
	}

	fields := statsFields(line)
	if len(fields) == 0 {
		return Progress{}, false
	}

	if v, found := fields["frame"]; found {
		p.Frame, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, found := fields["fps"]; found {
		p.FPS, _ = strconv.ParseFloat(v, 64)
	}
	if v, found := fields["bitrate"]; found {
		p.BitrateKbps, _ = strconv.ParseFloat(strings.TrimSuffix(v, "kbits/s"), 64)
	}
	if v, found := fields["speed"]; found {
		p.Speed, _ = strconv.ParseFloat(strings.TrimSuffix(v, "x"), 64)
	}
	p.OutTime = fields["time"]

	return p, true
}

// statsFields splits "key= value key=value" pairs; ffmpeg pads values with spaces after '='.
func statsFields(line string) map[string]string {
	fields := make(map[string]string)
	rest := line
	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			break
		}
		key := strings.TrimSpace(rest[:eq])
		rest = strings.TrimLeft(rest[eq+1:], " ")

		end := strings.IndexByte(rest, ' ')
		if end == -1 {
			fields[key] = rest
			break
		}
		fields[key] = rest[:end]
		rest = strings.TrimLeft(rest[end:], " ")
	}
	return fields
}
