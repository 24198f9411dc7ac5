// Package fetch opens one streaming protobuf HTTP GET at a time and yields
// decoded messages off it in order (spec.md §4.B). It mirrors the teacher's
// deserialize-then-decode pattern in
// linkerd-linkerd2/controller/api/proto_over_http.go, adapted from a single
// fixed-width length prefix read via io.ReadFull into the arbitrary-chunk
// varint framing internal/framing implements, and from a one-shot call into
// a retrying streaming one.
package fetch

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nicolive/ndgr-client/internal/framing"
	"github.com/nicolive/ndgr-client/internal/ndgrerr"
)

const (
	maxAttempts     = 5
	retryDelay      = 3 * time.Second
	readIdleTimeout = 40 * time.Second
)

// Decode turns one whole framed payload into a value of the caller's choice.
// Implementations live in internal/wire; fetch itself is decode-agnostic.
type Decode[T any] func([]byte) (T, error)

// Stream opens url as a streaming GET and calls emit for each decoded
// message, in order, until the body ends normally or ctx is cancelled. On a
// transport fault it tries again with a fixed delay, making at most
// maxAttempts attempts in total; the final failure is returned wrapped as
// *ndgrerr.TransportError. emit errors abort the stream immediately, without
// a retry and without the TransportError wrapping; they come back inside an
// internal wrapper that errors.Is/errors.As see through.
func Stream[T any](ctx context.Context, client *http.Client, url string, decode Decode[T], emit func(T) error) error {
	log := logrus.WithField("component", "fetch").WithField("url", url)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return ndgrerr.ErrCancelled
		}

		err := streamOnce(ctx, client, url, decode, emit)
		if err == nil {
			return nil
		}
		if isEmitError(err) {
			return err
		}
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("stream attempt failed")

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ndgrerr.ErrCancelled
		case <-time.After(retryDelay):
		}
	}
	return ndgrerr.NewTransport("fetch.Stream", lastErr)
}

type emitError struct{ err error }

func (e emitError) Error() string { return e.err.Error() }
func (e emitError) Unwrap() error { return e.err }

func isEmitError(err error) bool {
	_, ok := err.(emitError)
	return ok
}

func streamOnce[T any](ctx context.Context, client *http.Client, url string, decode Decode[T], emit func(T) error) error {
	// ctx carries only the caller's own cancellation, not a deadline: the
	// connect phase is bounded by the client's transport dialer instead
	// (internal/session's connectTimeout), and the read-idle watchdog below
	// bounds the body once it's streaming. A context deadline here would
	// otherwise cut off long-lived view/segment streams once it elapsed.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &net.OpError{Op: "fetch", Err: httpStatusError(resp.StatusCode)}
	}

	reader := framing.New()
	chunk := make([]byte, 32*1024)

	for {
		n, readErr := readWithIdleDeadline(ctx, resp.Body, chunk)
		if n > 0 {
			reader.Append(chunk[:n])
			for {
				frame, ok, extractErr := reader.Extract()
				if extractErr != nil {
					return extractErr
				}
				if !ok {
					break
				}
				msg, decodeErr := decode(frame)
				if decodeErr != nil {
					return decodeErr
				}
				if emitErr := emit(msg); emitErr != nil {
					return emitError{emitErr}
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// readWithIdleDeadline bounds one Read call by readIdleTimeout without
// requiring resp.Body to support SetReadDeadline (the stdlib http transport
// returns a body that doesn't).
func readWithIdleDeadline(ctx context.Context, r io.Reader, buf []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := r.Read(buf)
		done <- result{n, err}
	}()

	select {
	case res := <-done:
		return res.n, res.err
	case <-time.After(readIdleTimeout):
		return 0, errReadIdleTimeout
	case <-ctx.Done():
		return 0, ndgrerr.ErrCancelled
	}
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return http.StatusText(int(e)) + ": non-2xx response"
}

type idleTimeoutError struct{}

func (idleTimeoutError) Error() string   { return "read idle timeout exceeded" }
func (idleTimeoutError) Timeout() bool   { return true }
func (idleTimeoutError) Temporary() bool { return true }

var errReadIdleTimeout error = idleTimeoutError{}
