package ffmpeg

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidRequest is returned when a relay request cannot be turned into a worker invocation.
var ErrInvalidRequest = errors.New("invalid relay request")

// Request describes one relay: a single input stream fanned out to destinations.
type Request struct {
	Source       string   `json:"source" toml:"source"`
	Destinations []string `json:"destinations" toml:"destinations"`
}

// Validate checks the request structure. It does not contact any endpoint.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Source) == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidRequest)
	}
	if _, err := parseEndpoint(r.Source); err != nil {
		return fmt.Errorf("%w: source: %w", ErrInvalidRequest, err)
	}
	if len(r.Destinations) == 0 {
		return fmt.Errorf("%w: at least one destination is required", ErrInvalidRequest)
	}
	for i, dest := range r.Destinations {
		if _, err := parseEndpoint(dest); err != nil {
			return fmt.Errorf("%w: destination %d: %w", ErrInvalidRequest, i, err)
		}
	}
	return nil
}

// parseEndpoint accepts scheme://host[/path] stream endpoints.
func parseEndpoint(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) != raw || raw == "" {
		return nil, fmt.Errorf("malformed endpoint %q", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("endpoint %q has no scheme", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("endpoint %q has no host", raw)
	}
	return u, nil
}
