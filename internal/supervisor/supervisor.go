// Package supervisor owns a live stream for one nominal program, including
// transparent ENDED/RESTART handoff across consecutive programs on a
// channel handle (spec.md §4.G). Its "wait for either the program or the
// monitor" idiom is the same wait-on-whichever-fires-first shape as the
// teacher's jittered ticker
// (linkerd-linkerd2/controller/cmd/service-mirror/jittered_ticker.go),
// generalized from a single ticker channel to a select across a program
// goroutine and a monitor goroutine.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nicolive/ndgr-client/internal/model"
	"github.com/nicolive/ndgr-client/internal/ndgrerr"
	"github.com/nicolive/ndgr-client/internal/segment"
	"github.com/nicolive/ndgr-client/internal/session"
	"github.com/nicolive/ndgr-client/internal/viewstream"
	"github.com/nicolive/ndgr-client/internal/viewuri"
)

// DefaultMonitorCadence and DefaultMonitorOffset are the program-status
// poll cadence from spec.md §4.G: "sleeps until the next wall-clock minute
// + 5 seconds". New takes them as parameters, mirroring the teacher's
// jittered ticker (linkerd-linkerd2/controller/cmd/service-mirror/
// jittered_ticker.go's NewTicker(minDuration, maxJitter time.Duration)),
// so callers that need a faster monitor loop (tests) can supply their own.
const (
	DefaultMonitorCadence = time.Minute
	DefaultMonitorOffset  = 5 * time.Second
)

// outputBufferSize bounds the caller-facing Comment queue. It only needs to
// absorb the brief overlap window between consecutive segment workers
// (spec.md §4.F: "< ~8 seconds"), not whole-program backlogs.
const outputBufferSize = 256

var (
	commentsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ndgr",
		Name:      "comments_emitted_total",
		Help:      "Comments delivered to the caller, by program id.",
	}, []string{"program_id"})

	handoffsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ndgr",
		Name:      "handoffs_total",
		Help:      "RESTART handoffs performed for a channel-bound supervisor.",
	}, []string{"channel_handle"})
)

func init() {
	prometheus.MustRegister(commentsEmitted, handoffsTotal)
}

// Resolver is the subset of watchpage.Resolver the supervisor needs,
// narrowed so tests can substitute a fake.
type Resolver interface {
	Resolve(ctx context.Context, handle string, isChannelHandle bool) (model.ProgramInfo, error)
}

// Supervisor drives one handle's live stream end to end.
type Supervisor struct {
	sess            *session.Session
	resolver        Resolver
	handle          string
	isChannelHandle bool
	monitorCadence  time.Duration
	monitorOffset   time.Duration

	errMu sync.Mutex
	err   error
}

// New builds a Supervisor for handle. isChannelHandle selects the
// channel-bound handoff behavior from spec.md §4.G. monitorCadence and
// monitorOffset set the program-status poll schedule (DefaultMonitorCadence
// and DefaultMonitorOffset for production use; tests pass a shorter
// synthetic cadence so the monitor path doesn't need a real wall-clock
// minute to exercise).
func New(sess *session.Session, resolver Resolver, handle string, isChannelHandle bool, monitorCadence, monitorOffset time.Duration) *Supervisor {
	return &Supervisor{
		sess:            sess,
		resolver:        resolver,
		handle:          handle,
		isChannelHandle: isChannelHandle,
		monitorCadence:  monitorCadence,
		monitorOffset:   monitorOffset,
	}
}

// Stream resolves the handle's current program and returns a channel of
// Comments delivered strictly in arrival order. The channel is closed when
// the stream ends (ENDED with no further handoff) or ctx is cancelled. If
// the first resolve already reports ENDED, Stream refuses to start (spec.md
// §4.G precondition: "historical-only programs must use the Backward
// path").
func (s *Supervisor) Stream(ctx context.Context) (<-chan model.Comment, error) {
	info, err := s.resolver.Resolve(ctx, s.handle, s.isChannelHandle)
	if err != nil {
		return nil, err
	}
	if info.Status == model.StatusEnded {
		return nil, ndgrerr.NewInput("program %s has already ended; use the backward download path instead", info.ProgramID)
	}

	out := make(chan model.Comment, outputBufferSize)
	go s.run(ctx, info, out)
	return out, nil
}

// Err returns the error that ended the stream, if any, mirroring
// bufio.Scanner's Err() idiom: check it only after the Comment channel has
// been drained and closed. A clean ENDED/cancellation ending leaves it nil.
func (s *Supervisor) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Supervisor) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Supervisor) run(ctx context.Context, info model.ProgramInfo, out chan<- model.Comment) {
	defer close(out)
	log := logrus.WithField("component", "supervisor").WithField("handle", s.handle)

	for {
		g, gctx := errgroup.WithContext(ctx)

		var monitorSig signal
		var monitorFired bool

		g.Go(func() error {
			perr := s.runProgram(gctx, info, out)
			if perr == nil {
				// Natural end (view driver closed without a Next): still
				// needs to cancel gctx so the monitor goroutine stops, since
				// errgroup only cancels on a non-nil error.
				return errProgramEnded
			}
			return perr
		})
		g.Go(func() error {
			sig, fired, err := s.monitorOnce(gctx, info)
			if err != nil {
				return err
			}
			if fired {
				monitorSig = sig
				monitorFired = true
				return errMonitorFired
			}
			return nil
		})

		err := g.Wait()
		// g.Wait cancels gctx as soon as either goroutine returns a non-nil
		// error, so the other goroutine has already stopped by the time
		// Wait returns.
		switch {
		case errors.Is(err, errProgramEnded), errors.Is(err, errMonitorFired), errors.Is(err, ndgrerr.ErrCancelled):
			// expected terminations, not faults
		case err != nil:
			log.WithError(err).Warn("program stream ended with an error")
			s.setErr(err)
		}
		if ctx.Err() != nil {
			return
		}
		if !monitorFired {
			return
		}

		switch monitorSig.kind {
		case signalEnded:
			return
		case signalRestart:
			log.WithField("successor", monitorSig.next.ProgramID).Info("channel handoff to successor program")
			handoffsTotal.WithLabelValues(s.handle).Inc()
			info = monitorSig.next
			continue
		}
		return
	}
}

var errProgramEnded = errors.New("supervisor: program stream ended naturally")
var errMonitorFired = errors.New("supervisor: monitor reached a decision")

func (s *Supervisor) runProgram(ctx context.Context, info model.ProgramInfo, out chan<- model.Comment) error {
	if info.WebSocketURL == "" {
		return ndgrerr.NewProtocol("program %s has no websocket url to acquire a view uri from", info.ProgramID)
	}

	viewURI, err := viewuri.Acquire(ctx, info.WebSocketURL, s.sess.UserAgent())
	if err != nil {
		return err
	}

	counted, stopCounting := countingOutput(out, info.ProgramID)
	pool := segment.New(s.sess.HTTPClient(), counted)
	driver := viewstream.New(s.sess, viewURI)

	err = driver.Run(ctx, liveSink{pool: pool, ctx: ctx})
	pool.Wait()
	stopCounting()
	return err
}

// liveSink adapts the view driver's Sink interface to the segment pool for
// the live-stream path; Backward entries are not expected here (they are
// internal/backward's concern) and are logged, not acted on.
type liveSink struct {
	pool *segment.Pool
	ctx  context.Context
}

func (s liveSink) Segment(desc model.SegmentDescriptor) {
	s.pool.Start(s.ctx, desc)
}

func (s liveSink) Backward(model.BackwardURI) {
	logrus.WithField("component", "supervisor").Warn("unexpected Backward entry during live streaming")
}

type signalKind int

const (
	signalEnded signalKind = iota
	signalRestart
)

type signal struct {
	kind signalKind
	next model.ProgramInfo
}

// monitorOnce implements spec.md §4.G activity 3: it sleeps until the next
// wall-clock minute + 5 seconds, refetches ProgramInfo, and decides. It
// keeps polling (silently retrying a failed refetch) until it reaches a
// decision or ctx is cancelled, at which point fired is false.
func (s *Supervisor) monitorOnce(ctx context.Context, info model.ProgramInfo) (signal, bool, error) {
	log := logrus.WithField("component", "supervisor")
	for {
		select {
		case <-ctx.Done():
			return signal{}, false, nil
		case <-time.After(s.timeUntilNextTick()):
		}

		refreshed, err := s.resolver.Resolve(ctx, s.handle, s.isChannelHandle)
		if err != nil {
			log.WithError(err).Warn("program monitor refresh failed; will retry next tick")
			continue
		}

		if !s.isChannelHandle {
			if refreshed.Status == model.StatusEnded {
				return signal{kind: signalEnded}, true, nil
			}
			continue
		}

		if refreshed.ProgramID != info.ProgramID {
			return signal{kind: signalRestart, next: refreshed}, true, nil
		}
	}
}

func (s *Supervisor) timeUntilNextTick() time.Duration {
	now := time.Now()
	next := now.Truncate(s.monitorCadence).Add(s.monitorCadence).Add(s.monitorOffset)
	return next.Sub(now)
}

// countingOutput wraps out with a forwarding goroutine that increments the
// per-program comment counter on the way through. The caller MUST call the
// returned stop function once its writers (the segment pool) have all
// stopped, or the forwarding goroutine leaks.
func countingOutput(out chan<- model.Comment, programID string) (chan<- model.Comment, func()) {
	counted := make(chan model.Comment)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range counted {
			commentsEmitted.WithLabelValues(programID).Inc()
			out <- c
		}
	}()
	return counted, func() {
		close(counted)
		<-done
	}
}
