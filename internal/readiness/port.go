package readiness

import (
	"net/url"
	"strconv"
)

// PortFromURL extracts the port of an endpoint URL found by Scan.
func PortFromURL(raw string) (int, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, false
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}
