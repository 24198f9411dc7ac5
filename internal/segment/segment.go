// Package segment implements the Segment Worker Pool (spec.md §4.F): one
// short-lived worker per live SegmentDescriptor, draining its protobuf
// stream into a shared, caller-owned Comment queue. Idempotent worker start
// uses patrickmn/go-cache the way the pack's dependency manifests carry it
// for ephemeral, TTL-bounded membership sets — here the TTL outlives any
// single segment's ~24-second lifetime so a duplicate descriptor never
// restarts a worker that's still draining.
package segment

import (
	"context"
	"net/http"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/nicolive/ndgr-client/internal/fetch"
	"github.com/nicolive/ndgr-client/internal/model"
	"github.com/nicolive/ndgr-client/internal/wire"
)

// startedTTL must outlast the longest plausible segment lifetime (spec.md
// §4.B: "a segment holds at most ~24 seconds") with margin for the overlap
// window (spec.md §4.F: "~6 seconds" of concurrent workers).
const startedTTL = 2 * time.Minute

// Pool starts and tracks segment workers, feeding normalized Comments into
// a single shared output channel.
type Pool struct {
	client  *http.Client
	out     chan<- model.Comment
	started *cache.Cache
	wg      sync.WaitGroup
}

// New builds a Pool that issues segment GETs with client and pushes
// normalized Comments onto out. out is owned by the caller (internal/
// supervisor); the Pool never closes it.
func New(client *http.Client, out chan<- model.Comment) *Pool {
	return &Pool{
		client:  client,
		out:     out,
		started: cache.New(startedTTL, startedTTL/2),
	}
}

// Start spawns a worker for desc unless one was already started for the
// same URI (spec.md §4.F "Overlap and dedup": idempotent on duplicate
// observations). It returns immediately; the worker runs until ctx is
// cancelled or its stream ends.
func (p *Pool) Start(ctx context.Context, desc model.SegmentDescriptor) {
	if _, alreadyStarted := p.started.Get(desc.URI); alreadyStarted {
		return
	}
	p.started.SetDefault(desc.URI, true)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, desc)
	}()
}

// Wait blocks until every worker started so far has returned. Callers
// cancel ctx first so workers actually terminate.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, desc model.SegmentDescriptor) {
	log := logrus.WithField("component", "segment").WithField("uri", desc.URI)

	err := fetch.Stream(ctx, p.client, desc.URI, decodeAdmissible, func(am admissibleMessage) error {
		if !am.ok {
			return nil
		}
		comment := model.NormalizeComment(am.msg)
		select {
		case p.out <- comment:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil && ctx.Err() == nil {
		log.WithError(err).Warn("segment worker ended with an error")
	}
}

// admissibleMessage carries the wire package's admissibility verdict
// through fetch.Stream's single-value Decode signature.
type admissibleMessage struct {
	msg model.ChunkedMessage
	ok  bool
}

func decodeAdmissible(b []byte) (admissibleMessage, error) {
	msg, ok, err := wire.DecodeChunkedMessage(b)
	if err != nil {
		return admissibleMessage{}, err
	}
	return admissibleMessage{msg: msg, ok: ok}, nil
}
