package instance

import (
	"os"
	"strings"
)

// EnvInstanceID overrides the detected instance identifier.
const EnvInstanceID = "PARTSDEPOT_INSTANCE_ID"

const fallbackID = "cart-0"

var hostname = os.Hostname

// GetID identifies this process in logs and lock ownership. It prefers the
// explicit env override, then the pod hostname.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv(EnvInstanceID)); id != "" {
		return id
	}
	if host, err := hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
