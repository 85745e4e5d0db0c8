package reactor

import "github.com/valyala/bytebufferpool"

// bufferPool backs pooled output buffers. Protocols that build a reply in
// OnData (read, frame, respond) acquire storage here instead of
// allocating a fresh []byte per message.
var bufferPool bytebufferpool.Pool

// Writer accumulates bytes for a single outbound Buffer using pooled
// storage. Call Finish to obtain the immutable Buffer to hand to Write();
// the pooled storage is returned to bufferPool once every reference to the
// resulting Buffer has been released.
type Writer struct {
	bb *bytebufferpool.ByteBuffer
}

// AcquireWriter returns a Writer backed by a pooled buffer.
func AcquireWriter() *Writer {
	return &Writer{bb: bufferPool.Get()}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	return w.bb.Write(p)
}

// WriteString appends s.
func (w *Writer) WriteString(s string) (int, error) {
	return w.bb.WriteString(s)
}

// Len reports the number of bytes written so far.
func (w *Writer) Len() int {
	return w.bb.Len()
}

// Finish produces the Buffer for the bytes written so far and detaches the
// pooled storage from this Writer; the Writer must not be reused after
// Finish is called.
func (w *Writer) Finish() Buffer {
	bb := w.bb
	w.bb = nil
	buf := newBuffer(bb.B, func([]byte) {
		bb.Reset()
		bufferPool.Put(bb)
	})
	return buf
}

// Discard abandons the Writer's bytes and returns its storage to the pool
// without producing a Buffer — useful when a protocol decides mid-build
// not to send anything after all.
func (w *Writer) Discard() {
	if w.bb == nil {
		return
	}
	bb := w.bb
	w.bb = nil
	bb.Reset()
	bufferPool.Put(bb)
}
