package worker

import (
	"strings"

	"github.com/jihwankim/surge-utils/pkg/tlsx"
)

// Target is the immutable endpoint description shared across tasks. The
// URL scheme selects the transport: http/https use the structured client,
// raw and raw-https bit-bang TCP directly.
type Target struct {
	URL     string
	Method  string
	Headers map[string]string
}

// ExecutionTask is the instruction set for one adversarial execution
// cycle. It is built by the orchestrator and consumed exactly once by one
// worker.
type ExecutionTask struct {
	Target          *Target
	PayloadTemplate string
	Profile         tlsx.AttackProfile
}

// isRawURL reports whether the target goes through the raw transport.
func isRawURL(url string) bool {
	return strings.HasPrefix(url, "raw://") || strings.HasPrefix(url, "raw-https://")
}

// splitRawURL extracts host and port from a raw:// or raw-https:// URL,
// applying the scheme's default port. IPv6 literals follow the usual
// bracket convention: [::1]:8080 carries a port, a bare ::1 does not.
func splitRawURL(url string) (host, port string, isTLS bool) {
	rest := url
	if strings.HasPrefix(url, "raw-https://") {
		rest = strings.TrimPrefix(url, "raw-https://")
		isTLS = true
		port = "443"
	} else {
		rest = strings.TrimPrefix(url, "raw://")
		port = "80"
	}
	rest = strings.TrimSuffix(rest, "/")

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", "", isTLS
		}
		host = rest[1:end]
		if rem := rest[end+1:]; strings.HasPrefix(rem, ":") && len(rem) > 1 {
			port = rem[1:]
		}
		return host, port, isTLS
	}

	if i := strings.LastIndexByte(rest, ':'); i >= 0 && strings.IndexByte(rest, ':') == i {
		return rest[:i], rest[i+1:], isTLS
	}

	// Bare hostname, IPv4, or an unbracketed IPv6 literal without a port.
	return rest, port, isTLS
}
