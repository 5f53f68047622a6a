package pool

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ---------------------------------------------------------------
// Pools for the fetch hot path.
//
// Each remote object is gunzipped and split into lines. With several
// workers and hundreds of objects per hour, reusing gzip readers/writers
// and line buffers keeps allocation flat.
// ---------------------------------------------------------------

var (
	// bufferPool: line buffers and encode output buffers (initial 256KB).
	bufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 256*1024))
		},
	}

	// gzipReaderPool holds *gzip.Reader values. A nil entry means the
	// caller must construct one, because gzip.NewReader needs a valid
	// header to succeed.
	gzipReaderPool sync.Pool

	// gzipWriterPool: BestSpeed writers, used for fixtures and replays.
	gzipWriterPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

// MaxBufferCap is the largest buffer returned to the pool. Bigger ones
// are left to the GC so one huge object does not pin memory.
const MaxBufferCap = 4 * 1024 * 1024

// GetBuffer returns an empty buffer.
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns buf to the pool if it is not oversized.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= MaxBufferCap {
		buf.Reset()
		bufferPool.Put(buf)
	}
}

// GetGzipReader returns a gzip reader positioned at the start of r.
func GetGzipReader(r io.Reader) (*gzip.Reader, error) {
	if zr, ok := gzipReaderPool.Get().(*gzip.Reader); ok {
		if err := zr.Reset(r); err != nil {
			gzipReaderPool.Put(zr)
			return nil, err
		}
		return zr, nil
	}
	return gzip.NewReader(r)
}

// PutGzipReader closes zr and returns it to the pool.
func PutGzipReader(zr *gzip.Reader) {
	_ = zr.Close()
	gzipReaderPool.Put(zr)
}

// GetGzipWriter returns a writer that compresses into w.
func GetGzipWriter(w io.Writer) *gzip.Writer {
	gz := gzipWriterPool.Get().(*gzip.Writer)
	gz.Reset(w)
	return gz
}

// PutGzipWriter returns gz to the pool. The caller must have closed it.
func PutGzipWriter(gz *gzip.Writer) {
	gzipWriterPool.Put(gz)
}
