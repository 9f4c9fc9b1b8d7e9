package reporting

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeLogLineStripsANSI(t *testing.T) {
	in := "\x1b[31mALERT\x1b[0m injected"
	out := SanitizeLogLine(in)
	assert.Equal(t, "ALERT injected", out)
}

func TestSanitizeLogLineKeepsNewlines(t *testing.T) {
	out := SanitizeLogLine("line1\nline2")
	assert.Equal(t, "line1\nline2", out)
}

func TestSanitizeLogLineEscapesControlChars(t *testing.T) {
	out := SanitizeLogLine("bell\x07tab\there")
	assert.Equal(t, `bell\x07tab\x09here`, out)
}

func TestSanitizeLogLineEscapesLoneEscape(t *testing.T) {
	// An ESC that does not open a CSI sequence is escaped, not stripped.
	out := SanitizeLogLine("x\x1by")
	assert.Equal(t, `x\x1by`, out)
}

func TestSanitizeLogLineTruncates(t *testing.T) {
	in := strings.Repeat("A", 500)
	out := SanitizeLogLine(in)
	runes := []rune(out)
	require.Len(t, runes, maxLogLine)
	assert.Equal(t, '…', runes[len(runes)-1])
}

func TestSanitizeLogLineIdempotent(t *testing.T) {
	inputs := []string{
		"\x1b[31mred\x1b[0m",
		"null\x00byte",
		strings.Repeat("\x07", 300),
		"plain ascii",
		"multi\nline\nwith\ttabs",
		string([]byte{0x16, 0x03, 0x01, 0x00}),
	}
	for _, in := range inputs {
		once := SanitizeLogLine(in)
		twice := SanitizeLogLine(once)
		assert.Equal(t, once, twice, "sanitizer not idempotent for %q", in)
	}
}
