package fetch

import (
	"context"

	"github.com/italolelis/lazypreview/internal/source"
	"github.com/italolelis/lazypreview/internal/telemetry"
)

// InstrumentedFetcher wraps a Fetcher with telemetry.
type InstrumentedFetcher struct {
	next      Fetcher
	telemetry *telemetry.Telemetry
}

// NewInstrumentedFetcher creates a new instrumented fetcher.
func NewInstrumentedFetcher(next Fetcher, tel *telemetry.Telemetry) *InstrumentedFetcher {
	return &InstrumentedFetcher{next: next, telemetry: tel}
}

// Fetch opens a window with telemetry. The returned body reports the bytes it
// delivered and releases the active stream gauge when closed.
func (f *InstrumentedFetcher) Fetch(ctx context.Context, d source.Descriptor, w source.Window) (*Stream, error) {
	origin := string(d.Kind)

	var stream *Stream

	err := f.telemetry.InstrumentFetch(ctx, origin, Outcome, func(ctx context.Context) error {
		var err error
		stream, err = f.next.Fetch(ctx, d, w)

		return err
	})
	if err != nil {
		return nil, err
	}

	if f.telemetry == nil {
		return stream, nil
	}

	f.telemetry.IncrementActiveStreams()

	stream.Body = &meteredBody{
		ReadCloser: stream.Body,
		onClose: func(read int64) {
			f.telemetry.RecordStreamedBytes(origin, read)
			f.telemetry.DecrementActiveStreams()
		},
	}

	return stream, nil
}
