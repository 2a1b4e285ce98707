package fetch

import "io"

// chunkedBody yields at most limit bytes from r, never more than chunk bytes
// per Read, and closes the underlying source on Close.
type chunkedBody struct {
	r      io.Reader
	closer io.Closer
	chunk  int
}

func newChunkedBody(rc io.ReadCloser, limit int64, chunk int) *chunkedBody {
	if chunk <= 0 {
		chunk = ChunkSize
	}

	return &chunkedBody{
		r:      io.LimitReader(rc, limit),
		closer: rc,
		chunk:  chunk,
	}
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	if len(p) > b.chunk {
		p = p[:b.chunk]
	}

	return b.r.Read(p)
}

func (b *chunkedBody) Close() error {
	return b.closer.Close()
}

// meteredBody counts bytes read and reports the total once, on Close.
type meteredBody struct {
	io.ReadCloser
	read    int64
	closed  bool
	onClose func(read int64)
}

func (b *meteredBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.read += int64(n)

	return n, err
}

func (b *meteredBody) Close() error {
	err := b.ReadCloser.Close()

	if !b.closed {
		b.closed = true
		if b.onClose != nil {
			b.onClose(b.read)
		}
	}

	return err
}
