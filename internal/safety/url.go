package safety

import (
	"fmt"
	"io"
	"net/url"
	"strings"
)

// SourceURL parses a mirror or download base URL. Only http and https with a
// host are accepted, and credentials embedded in the URL are refused since
// the URL is written to the config file and logs.
func SourceURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid source URL: %w", err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return nil, fmt.Errorf("source URL %q: scheme must be http or https", raw)
	case u.Hostname() == "":
		return nil, fmt.Errorf("source URL %q has no host", raw)
	case u.User != nil:
		return nil, fmt.Errorf("source URL %q must not contain credentials", raw)
	}
	return u, nil
}

// ProbeHost returns the host name a latency probe should target for raw.
func ProbeHost(raw string) (string, error) {
	u, err := SourceURL(raw)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	// Hosts are passed to ping as a single argument.
	if strings.HasPrefix(host, "-") {
		return "", fmt.Errorf("source URL %q: invalid host", raw)
	}
	return host, nil
}

// Snippet reads at most limit bytes of r for inclusion in an error message.
// Truncated text ends with "...".
func Snippet(r io.Reader, limit int64) string {
	if limit <= 0 {
		return ""
	}
	data, _ := io.ReadAll(io.LimitReader(r, limit+1))
	if int64(len(data)) > limit {
		return strings.TrimSpace(string(data[:limit])) + "..."
	}
	return strings.TrimSpace(string(data))
}
