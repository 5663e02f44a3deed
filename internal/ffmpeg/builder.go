package ffmpeg

import (
	"strings"
)

// Container formats used for output framing.
const (
	FormatFLV    = "flv"
	FormatMPEGTS = "mpegts"
	FormatRTSP   = "rtsp"
)

// BuildRelayArgs builds the worker argument vector for a relay request.
// The input is stream-copied to every destination:
//
//	-i <source> -c copy [-f <format> <destination>]...
func BuildRelayArgs(req Request) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	args := make([]string, 0, 4+3*len(req.Destinations))
	args = append(args, "-i", req.Source, "-c", "copy")

	for _, dest := range req.Destinations {
		args = append(args, "-f", FormatForDestination(dest), dest)
	}

	return args, nil
}

// FormatForDestination picks the output container for a destination based on its scheme.
// Unknown schemes fall back to FLV, the RTMP ingest format.
func FormatForDestination(dest string) string {
	scheme, _, found := strings.Cut(dest, "://")
	if !found {
		return FormatFLV
	}

	switch strings.ToLower(scheme) {
	case "srt", "udp", "tcp", "rtp":
		return FormatMPEGTS
	case "rtsp", "rtsps":
		return FormatRTSP
	default:
		return FormatFLV
	}
}

// CommandLine renders binary and args as a single string for logging.
func CommandLine(binary string, args []string) string {
	var sb strings.Builder
	sb.WriteString(binary)
	for _, arg := range args {
		sb.WriteByte(' ')
		if strings.ContainsAny(arg, " \t\"'") {
			sb.WriteString("\"" + strings.ReplaceAll(arg, "\"", "\\\"") + "\"")
		} else {
			sb.WriteString(arg)
		}
	}
	return sb.String()
}
