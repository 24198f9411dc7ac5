package viewstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nicolive/ndgr-client/internal/model"
	"github.com/nicolive/ndgr-client/internal/session"
)

func encodeVarint(v int) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			return out
		}
	}
}

func frame(payload []byte) []byte {
	return append(encodeVarint(len(payload)), payload...)
}

func segmentEntry(uri string) []byte {
	var seg []byte
	seg = protowire.AppendTag(seg, 1, protowire.BytesType)
	seg = protowire.AppendBytes(seg, []byte(uri))

	var entry []byte
	entry = protowire.AppendTag(entry, 1, protowire.BytesType)
	entry = protowire.AppendBytes(entry, seg)
	return entry
}

func nextEntry(at int64) []byte {
	var next []byte
	next = protowire.AppendTag(next, 1, protowire.VarintType)
	next = protowire.AppendVarint(next, uint64(at))

	var entry []byte
	entry = protowire.AppendTag(entry, 2, protowire.BytesType)
	entry = protowire.AppendBytes(entry, next)
	return entry
}

func backwardEntry(uri string) []byte {
	var seg []byte
	seg = protowire.AppendTag(seg, 1, protowire.BytesType)
	seg = protowire.AppendBytes(seg, []byte(uri))

	var entry []byte
	entry = protowire.AppendTag(entry, 3, protowire.BytesType)
	entry = protowire.AppendBytes(entry, seg)
	return entry
}

type recordingSink struct {
	segments  []model.SegmentDescriptor
	backwards []model.BackwardURI
}

func (s *recordingSink) Segment(sd model.SegmentDescriptor) { s.segments = append(s.segments, sd) }
func (s *recordingSink) Backward(b model.BackwardURI)       { s.backwards = append(s.backwards, b) }

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.New(0)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return sess
}

// Scenario 3 (spec.md §8): two slices each deliver a segment then a Next;
// a third slice closes without a Next, terminating the driver.
func TestDriver_Scenario3_SlicingAndTermination(t *testing.T) {
	var sliceCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sliceCount++
		switch sliceCount {
		case 1:
			w.Write(frame(segmentEntry("https://example/s1")))
			w.Write(frame(nextEntry(1700000100)))
		case 2:
			w.Write(frame(segmentEntry("https://example/s2")))
			w.Write(frame(nextEntry(1700000132)))
		case 3:
			// closes with no Next: program ended.
		}
	}))
	defer srv.Close()

	d := New(newTestSession(t), srv.URL)
	sink := &recordingSink{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.Run(ctx, sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sliceCount != 3 {
		t.Fatalf("expected 3 slices, got %d", sliceCount)
	}
	if len(sink.segments) != 2 || sink.segments[0].URI != "https://example/s1" || sink.segments[1].URI != "https://example/s2" {
		t.Fatalf("unexpected segments: %+v", sink.segments)
	}
}

func TestDriver_BackwardEntryStopsTheDriver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(frame(backwardEntry("https://example/backward/1")))
	}))
	defer srv.Close()

	d := New(newTestSession(t), srv.URL)
	sink := &recordingSink{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.Run(ctx, sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.backwards) != 1 || sink.backwards[0].URI != "https://example/backward/1" {
		t.Fatalf("unexpected backwards: %+v", sink.backwards)
	}
}

func TestDriver_DoubleNextIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(frame(nextEntry(1)))
		w.Write(frame(nextEntry(2)))
	}))
	defer srv.Close()

	d := New(newTestSession(t), srv.URL)
	sink := &recordingSink{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.Run(ctx, sink); err == nil {
		t.Fatalf("expected a protocol error for a second Next in one slice")
	}
}
