package fuzz

import (
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// appendWriter adapts an append target to io.Writer so the gzip encoder
// can stream straight into the caller's buffer.
type appendWriter struct {
	buf []byte
}

func (w *appendWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// encState bundles a recycled encoder with its output adapter; a fresh
// encoder per payload would dominate the allocation profile at line rate.
type encState struct {
	zw *gzip.Writer
	aw appendWriter
}

var gzipPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestCompression)
		return &encState{zw: w}
	},
}

// appendGzipBomb appends the best-compression encoding of size zero bytes.
// A 1 MiB plaintext collapses to roughly a kilobyte on the wire.
func appendGzipBomb(dst []byte, size int) []byte {
	if size > len(zeroBlock) {
		size = len(zeroBlock)
	}

	st := gzipPool.Get().(*encState)
	st.aw.buf = dst
	st.zw.Reset(&st.aw)

	if _, err := st.zw.Write(zeroBlock[:size]); err == nil {
		_ = st.zw.Close()
	}

	out := st.aw.buf
	st.aw.buf = nil
	gzipPool.Put(st)
	return out
}
