// Package preview rebuilds a text view of a large file from sequential,
// overlapping byte windows, appending only complete lines.
package preview

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

const (
	DefaultChunkSize = 1 << 20
	DefaultOverlap   = 1 << 10
	// DefaultMaxWindowFactor bounds window growth for lines longer than a chunk.
	DefaultMaxWindowFactor = 16
)

var (
	// ErrBusy is returned by Next while another cycle is in flight.
	ErrBusy = errors.New("preview: fetch already in flight")
	// ErrSourceChanged is returned when re-fetched overlap bytes differ from
	// the text already shown.
	ErrSourceChanged = errors.New("preview: source changed between reads")
)

// Source reads a byte window. It returns fewer than length bytes only when
// the source holds no more.
type Source interface {
	ReadRange(ctx context.Context, start, length int64) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, start, length int64) ([]byte, error)

func (f SourceFunc) ReadRange(ctx context.Context, start, length int64) ([]byte, error) {
	return f(ctx, start, length)
}

// Options configures a Reader. Zero values select the defaults.
type Options struct {
	ChunkSize int64
	Overlap   int64
	MaxWindow int64

	// OnAppend receives every non-empty segment appended to the view.
	OnAppend func(segment string)
	// OnTerminate is called once, with nil when the source is exhausted or
	// with the error that stopped the reader.
	OnTerminate func(err error)
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}

	if o.Overlap < 0 {
		o.Overlap = 0
	} else if o.Overlap == 0 {
		o.Overlap = DefaultOverlap
	}

	if o.MaxWindow < o.ChunkSize {
		o.MaxWindow = o.ChunkSize * DefaultMaxWindowFactor
	}

	return o
}

// Reader is the cursor of one view. At most one fetch cycle runs at a time;
// requests made while a cycle is in flight, or after the reader terminated,
// are dropped rather than queued.
type Reader struct {
	src  Source
	opts Options

	mu        sync.Mutex
	position  int64
	started   bool
	exhausted bool
	inFlight  bool
	err       error
	text      []byte
}

// NewReader creates a reader positioned at the start of src.
func NewReader(src Source, opts Options) *Reader {
	return &Reader{src: src, opts: opts.withDefaults()}
}

// Next runs one fetch cycle and returns the appended segment. It returns
// ErrBusy when a cycle is in flight, io.EOF once the source is exhausted and
// the terminal error after a failure.
func (r *Reader) Next(ctx context.Context) (string, error) {
	if err := r.acquire(); err != nil {
		return "", err
	}

	return r.cycle(ctx)
}

// Trigger starts a cycle in the background and reports whether it did. It is
// a no-op while a cycle is in flight or after the reader terminated.
func (r *Reader) Trigger(ctx context.Context) bool {
	if err := r.acquire(); err != nil {
		return false
	}

	go r.cycle(ctx)

	return true
}

func (r *Reader) acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.inFlight:
		return ErrBusy
	case r.err != nil:
		return r.err
	case r.exhausted:
		return io.EOF
	}

	r.inFlight = true

	return nil
}

func (r *Reader) cycle(ctx context.Context) (string, error) {
	r.mu.Lock()
	position, started := r.position, r.started
	r.mu.Unlock()

	start := int64(0)
	if started {
		start = max(position-r.opts.Overlap, 0)
	}

	skip := position - start
	window := r.opts.ChunkSize

	for {
		request := window + skip

		data, err := r.src.ReadRange(ctx, start, request)
		if err != nil {
			return "", r.finish(nil, false, err)
		}

		if err := r.checkOverlap(data, skip); err != nil {
			return "", r.finish(nil, false, err)
		}

		fresh := data[min(skip, int64(len(data))):]

		if int64(len(data)) < request {
			return string(fresh), r.finish(fresh, true, nil)
		}

		if i := bytes.LastIndexByte(fresh, '\n'); i >= 0 {
			return string(fresh[:i+1]), r.finish(fresh[:i+1], false, nil)
		}

		if window >= r.opts.MaxWindow {
			return string(fresh), r.finish(fresh, false, nil)
		}

		window = min(window*2, r.opts.MaxWindow)
	}
}

// checkOverlap compares the re-fetched prefix with the tail of the view.
func (r *Reader) checkOverlap(data []byte, skip int64) error {
	if skip == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(skip, int64(len(data)))
	tail := r.text[int64(len(r.text))-skip:][:n]

	if !bytes.Equal(data[:n], tail) {
		return ErrSourceChanged
	}

	return nil
}

// finish commits a cycle result and releases the slot. It returns the error
// Next should report.
func (r *Reader) finish(segment []byte, exhausted bool, err error) error {
	r.mu.Lock()

	r.inFlight = false
	r.started = true

	if err != nil {
		r.err = err
	} else {
		r.text = append(r.text, segment...)
		r.position += int64(len(segment))
		r.exhausted = exhausted
	}

	onAppend, onTerminate := r.opts.OnAppend, r.opts.OnTerminate
	terminated := err != nil || exhausted

	r.mu.Unlock()

	if onAppend != nil && len(segment) > 0 && err == nil {
		onAppend(string(segment))
	}

	if onTerminate != nil && terminated {
		onTerminate(err)
	}

	if err != nil {
		return err
	}

	if exhausted && len(segment) == 0 {
		return io.EOF
	}

	return nil
}

// Text returns everything appended so far.
func (r *Reader) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return string(r.text)
}

// Position returns the offset of the first byte not yet appended.
func (r *Reader) Position() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.position
}

// Exhausted reports whether the source has no bytes past Position.
func (r *Reader) Exhausted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.exhausted
}

// Busy reports whether a cycle is in flight.
func (r *Reader) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.inFlight
}

// Err returns the error that stopped the reader, if any.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}
