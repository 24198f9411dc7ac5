// Package viewstream drives one program's View stream as a sequence of
// contiguous, resumable slices (spec.md §4.E), classifying each decoded
// ChunkedEntry and handing Segment/Backward entries to its caller. It
// builds on internal/fetch.Stream the same way internal/watchpage builds
// on session.Session: a generic transport primitive wired to this
// component's own decode and retry policy.
package viewstream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nicolive/ndgr-client/internal/fetch"
	"github.com/nicolive/ndgr-client/internal/model"
	"github.com/nicolive/ndgr-client/internal/ndgrerr"
	"github.com/nicolive/ndgr-client/internal/session"
	"github.com/nicolive/ndgr-client/internal/wire"
)

const (
	sliceRetries = 3
	sliceRetryDelay = 1 * time.Second
)

// state is the per-slice state machine from spec.md §4.E. It exists for
// documentation and logging; Driver.Run's control flow already embodies
// the transitions.
type state int

const (
	stateInitial state = iota
	stateWaitingNext
	stateOpen
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateInitial:
		return "INITIAL"
	case stateWaitingNext:
		return "WAITING_NEXT"
	case stateOpen:
		return "OPEN"
	case stateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Sink receives the entries a slice yields that matter beyond this driver's
// own bookkeeping.
type Sink interface {
	// Segment is called for every Segment entry, in order.
	Segment(model.SegmentDescriptor)
	// Backward is called for the first Backward entry observed; after it
	// is called the driver stops reading the current slice and returns.
	Backward(model.BackwardURI)
}

// Driver drives one view URI's slice sequence until the program ends (a
// slice closes without a Next) or a Backward entry is observed.
type Driver struct {
	sess    *session.Session
	viewURI string
}

// New builds a Driver against viewURI using sess's HTTP client.
func New(sess *session.Session, viewURI string) *Driver {
	return &Driver{sess: sess, viewURI: viewURI}
}

// Run drives slices until the program ends, ctx is cancelled, or sink's
// Backward callback has fired. It returns nil when the program ended
// normally (no final Next), ndgrerr.ErrCancelled on cancellation, or a
// surfaced ProtocolError/TransportError after a slice's retries are
// exhausted.
func (d *Driver) Run(ctx context.Context, sink Sink) error {
	log := logrus.WithField("component", "viewstream")

	st := stateInitial
	at := "now"
	backwardSeen := false

	for {
		if err := ctx.Err(); err != nil {
			return ndgrerr.ErrCancelled
		}

		log.WithField("state", st.String()).WithField("at", at).Debug("opening slice")
		nextAt, gotNext, err := d.runSlice(ctx, at, sink, &backwardSeen)
		if err != nil {
			return err
		}
		if backwardSeen {
			return nil
		}
		if !gotNext {
			log.Debug("slice closed without a Next: program ended")
			return nil
		}
		st = stateWaitingNext
		at = nextAt
	}
}

// runSlice opens and drains one slice, retrying transport faults up to
// sliceRetries times. It returns the last Next.at value seen and whether
// one was seen at all.
func (d *Driver) runSlice(ctx context.Context, at string, sink Sink, backwardSeen *bool) (string, bool, error) {
	sliceURL := d.sliceURL(at)

	var lastErr error
	var nextAt string
	var gotNext bool

	for attempt := 0; attempt <= sliceRetries; attempt++ {
		nextAt, gotNext = "", false
		sawNext := false

		err := fetch.Stream(ctx, d.sess.HTTPClient(), sliceURL, wire.DecodeChunkedEntry, func(entry model.ViewEntry) error {
			switch {
			case entry.Segment != nil:
				sink.Segment(*entry.Segment)
			case entry.Next != nil:
				if sawNext {
					return ndgrerr.NewProtocol("slice yielded more than one Next entry")
				}
				sawNext = true
				nextAt = formatAt(entry.Next.At)
				gotNext = true
			case entry.Backward != nil:
				if !*backwardSeen {
					*backwardSeen = true
					sink.Backward(*entry.Backward)
				}
				return errBackwardObserved
			}
			return nil
		})

		if errors.Is(err, errBackwardObserved) {
			return "", false, nil
		}
		if err == nil {
			return nextAt, gotNext, nil
		}
		var perr *ndgrerr.ProtocolError
		if errors.As(err, &perr) {
			return "", false, perr
		}
		lastErr = err
		if attempt < sliceRetries {
			select {
			case <-ctx.Done():
				return "", false, ndgrerr.ErrCancelled
			case <-time.After(sliceRetryDelay):
			}
		}
	}
	return "", false, lastErr
}

var errBackwardObserved = fmt.Errorf("viewstream: backward entry observed")

func (d *Driver) sliceURL(at string) string {
	u, err := url.Parse(d.viewURI)
	if err != nil {
		return d.viewURI + "?at=" + at
	}
	q := u.Query()
	q.Set("at", at)
	u.RawQuery = q.Encode()
	return u.String()
}

func formatAt(seconds int64) string {
	return fmt.Sprintf("%d", seconds)
}
