package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/relaynode/internal/ffmpeg"
)

// relayFile is the on-disk relay definition:
//
//	[relay]
//	source = "srt://encoder:9000?mode=caller"
//	destinations = ["rtmp://a.example/live/key", "rtmp://b.example/live/key"]
type relayFile struct {
	Relay *ffmpeg.Request `toml:"relay"`
}

// LoadRelayFile reads and validates a relay definition.
func LoadRelayFile(path string) (ffmpeg.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ffmpeg.Request{}, fmt.Errorf("failed to read relay file: %w", err)
	}

	var f relayFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return ffmpeg.Request{}, fmt.Errorf("failed to parse relay file %s: %w", path, err)
	}
	if f.Relay == nil {
		return ffmpeg.Request{}, fmt.Errorf("%w: %s has no [relay] table", ffmpeg.ErrInvalidRequest, path)
	}
	if err := f.Relay.Validate(); err != nil {
		return ffmpeg.Request{}, err
	}
	return *f.Relay, nil
}
