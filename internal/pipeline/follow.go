package pipeline

import (
	"context"
	"time"

	"logwarden/internal/ingest"
	"logwarden/internal/logging"
	"logwarden/internal/metrics"
	"logwarden/internal/types"
)

// finalFlushTimeout bounds the write of the last partial batch after cancellation
const finalFlushTimeout = 10 * time.Second

// Follow consumes lines until the channel closes or ctx is done. Records are
// written when a batch fills or when the flush interval elapses, whichever
// comes first. The pending batch is flushed before returning.
func (p *Pipeline) Follow(ctx context.Context, lines <-chan ingest.LogLine) Counts {
	var counts Counts
	batch := make([]types.Record, 0, p.batchSize)

	flush := func(ctx context.Context) {
		stored, failed := p.flush(ctx, batch)
		counts.Stored += stored
		counts.StoreFailures += failed
		batch = batch[:0]
		metrics.TrackedOrigins.Set(float64(p.detector.Len()))
	}

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.drain(ctx, flush)
			return counts

		case <-ticker.C:
			if len(batch) > 0 {
				flush(ctx)
			}

		case line, ok := <-lines:
			if !ok {
				p.drain(ctx, flush)
				return counts
			}

			kind := line.Kind.String()
			counts.Lines++
			metrics.LinesRead.WithLabelValues(kind).Inc()

			ev, err := p.registry.Parse(line.Content, line.Kind)
			if err != nil {
				counts.ParseFailures++
				metrics.ParseFailures.WithLabelValues(kind).Inc()
				p.logger.Debug("skipping unparseable line", logging.Path(line.Source), logging.Error(err))
				continue
			}
			counts.Parsed++
			metrics.EventsProcessed.WithLabelValues(kind).Inc()

			rec := p.Classify(ctx, ev)
			if rec.Disposition == types.Flagged {
				counts.Flagged++
			}
			batch = append(batch, rec)
			if len(batch) >= p.batchSize {
				flush(ctx)
			}
		}
	}
}

// drain flushes the pending batch, detached from ctx if it was canceled
func (p *Pipeline) drain(ctx context.Context, flush func(context.Context)) {
	if ctx.Err() != nil {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
		defer cancel()
		flush(fctx)
		return
	}
	flush(ctx)
}

// Merge fans several line channels into one that closes once all inputs have closed
func Merge(ctx context.Context, inputs ...<-chan ingest.LogLine) <-chan ingest.LogLine {
	out := make(chan ingest.LogLine)
	done := make(chan struct{})
	remaining := len(inputs)

	if remaining == 0 {
		close(out)
		return out
	}

	for _, in := range inputs {
		go func(in <-chan ingest.LogLine) {
			defer func() { done <- struct{}{} }()
			for line := range in {
				select {
				case out <- line:
				case <-ctx.Done():
					return
				}
			}
		}(in)
	}

	go func() {
		for ; remaining > 0; remaining-- {
			<-done
		}
		close(out)
	}()

	return out
}
