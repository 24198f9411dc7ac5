// Package backward implements the Backward Walker (spec.md §4.H):
// harvesting a program's full historical comment log by driving the view
// stream to its first Backward entry, then walking the packed segment
// chain backwards, prepending each batch so the accumulator stays globally
// ascending. Pacing between packed-segment fetches follows
// nishisan-dev-n-backup/internal/agent/throttle.go's token-bucket idiom
// (golang.org/x/time/rate, Wait(ctx) rather than a bare time.Sleep).
package backward

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/nicolive/ndgr-client/internal/model"
	"github.com/nicolive/ndgr-client/internal/ndgrerr"
	"github.com/nicolive/ndgr-client/internal/session"
	"github.com/nicolive/ndgr-client/internal/viewstream"
	"github.com/nicolive/ndgr-client/internal/wire"
)

// batchPacing is the delay between successive packed-segment fetches
// (spec.md §4.H: "sleep 10 ms and repeat... aggressive polling risks 403
// responses").
const batchPacing = 10 * time.Millisecond

// segmentFetchTimeout bounds each packed-segment GET (spec.md §5:
// "Non-streaming GETs (ProgramInfo, PackedSegment): 15s").
const segmentFetchTimeout = 15 * time.Second

// Walker downloads the complete historical comment log for one program.
// Its rate limiter is shared across every Download call the Walker makes,
// not recreated per call, so a "download all" loop over many channels
// paces the shared endpoint the same as a single-channel walk would.
type Walker struct {
	sess    *session.Session
	limiter *rate.Limiter
}

// New builds a Walker bound to sess.
func New(sess *session.Session) *Walker {
	return &Walker{sess: sess, limiter: rate.NewLimiter(rate.Every(batchPacing), 1)}
}

// sinkCapture adapts the view driver's Sink interface to capture only the
// first Backward entry; Segment entries are ignored (the backward walk has
// no use for the live segment stream).
type sinkCapture struct {
	backward chan<- model.BackwardURI
}

func (s sinkCapture) Segment(model.SegmentDescriptor) {}

func (s sinkCapture) Backward(b model.BackwardURI) {
	select {
	case s.backward <- b:
	default:
	}
}

// Download implements spec.md §4.H: drives the view stream to its first
// Backward entry, then walks the packed segment chain, returning the full
// comment history in ascending chronological order. It does not retry
// individually on a walk-step transport error (spec.md §9 "Back-download
// non-retry"): any non-2xx or transport fault during the walk is surfaced
// immediately and the whole call fails, returning no comments, including
// none of the batches already accumulated.
func (w *Walker) Download(ctx context.Context, viewURI string) ([]model.Comment, error) {
	backwardURI, err := w.findBackwardURI(ctx, viewURI)
	if err != nil {
		return nil, err
	}

	var comments []model.Comment
	uri := backwardURI.URI

	for uri != "" {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, ndgrerr.ErrCancelled
		}

		packed, err := w.fetchPackedSegment(ctx, uri)
		if err != nil {
			return nil, err
		}

		batch := make([]model.Comment, 0, len(packed.Messages))
		for _, msg := range packed.Messages {
			batch = append(batch, model.NormalizeComment(msg))
		}
		// Successive batches go further back in time; prepending keeps the
		// accumulator globally ascending (spec.md §4.H step 3).
		comments = append(batch, comments...)

		uri = packed.NextURI
	}

	return comments, nil
}

func (w *Walker) findBackwardURI(ctx context.Context, viewURI string) (model.BackwardURI, error) {
	backwardCh := make(chan model.BackwardURI, 1)
	driver := viewstream.New(w.sess, viewURI)

	driverCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- driver.Run(driverCtx, sinkCapture{backward: backwardCh})
	}()

	select {
	case b := <-backwardCh:
		cancel()
		<-errCh
		return b, nil
	case err := <-errCh:
		if err != nil {
			return model.BackwardURI{}, err
		}
		return model.BackwardURI{}, ndgrerr.NewProtocol("view stream ended without ever yielding a Backward entry")
	case <-ctx.Done():
		return model.BackwardURI{}, ndgrerr.ErrCancelled
	}
}

func (w *Walker) fetchPackedSegment(ctx context.Context, uri string) (model.PackedSegment, error) {
	ctx, cancel := context.WithTimeout(ctx, segmentFetchTimeout)
	defer cancel()

	resp, err := w.sess.Get(ctx, uri)
	if err != nil {
		return model.PackedSegment{}, ndgrerr.NewTransport("backward.fetchPackedSegment", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.PackedSegment{}, ndgrerr.NewTransport("backward.fetchPackedSegment",
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.PackedSegment{}, ndgrerr.NewTransport("backward.fetchPackedSegment", err)
	}

	return wire.DecodePackedSegment(body)
}
