package reporting

import (
	"fmt"
	"regexp"
	"strings"
)

// maxLogLine bounds a sanitized payload echo. Responses from hostile
// targets can be arbitrarily long; anything past this is noise.
const maxLogLine = 128

// csiPattern matches ANSI CSI escape sequences (colors, cursor movement,
// screen clearing). OSC and other lone-ESC sequences are handled by the
// control-character pass below.
var csiPattern = regexp.MustCompile(`\x1b\[[0-9;:?]*[ -/]*[@-~]`)

// SanitizeLogLine renders untrusted payload or response bytes safe for a
// terminal log sink. ANSI CSI sequences are stripped, newlines are kept,
// every other control character is escaped to a \xNN literal, and the
// result is truncated to 128 characters with an ellipsis.
//
// Sanitizing already-sanitized input returns it unchanged.
func SanitizeLogLine(s string) string {
	s = csiPattern.ReplaceAllString(s, "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}

	out := []rune(b.String())
	if len(out) > maxLogLine {
		return string(out[:maxLogLine-1]) + "…"
	}
	return string(out)
}
