package backward

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

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

func frame(payload []byte) []byte { return append(encodeVarint(len(payload)), payload...) }

func backwardEntry(uri string) []byte {
	var seg []byte
	seg = protowire.AppendTag(seg, 1, protowire.BytesType)
	seg = protowire.AppendBytes(seg, []byte(uri))

	var entry []byte
	entry = protowire.AppendTag(entry, 3, protowire.BytesType)
	entry = protowire.AppendBytes(entry, seg)
	return entry
}

func chunkedMessage(id string, seconds int64, content string) []byte {
	var ts []byte
	ts = protowire.AppendTag(ts, 1, protowire.VarintType)
	ts = protowire.AppendVarint(ts, uint64(seconds))

	var chatOrigin []byte
	chatOrigin = protowire.AppendTag(chatOrigin, 1, protowire.VarintType)
	chatOrigin = protowire.AppendVarint(chatOrigin, 42)

	var origin []byte
	origin = protowire.AppendTag(origin, 1, protowire.BytesType)
	origin = protowire.AppendBytes(origin, chatOrigin)

	var meta []byte
	meta = protowire.AppendTag(meta, 1, protowire.BytesType)
	meta = protowire.AppendBytes(meta, []byte(id))
	meta = protowire.AppendTag(meta, 2, protowire.BytesType)
	meta = protowire.AppendBytes(meta, ts)
	meta = protowire.AppendTag(meta, 3, protowire.BytesType)
	meta = protowire.AppendBytes(meta, origin)

	var mod []byte
	mod = protowire.AppendTag(mod, 6, protowire.VarintType)
	mod = protowire.AppendVarint(mod, 0)

	var chat []byte
	chat = protowire.AppendTag(chat, 1, protowire.VarintType)
	chat = protowire.AppendVarint(chat, 7)
	chat = protowire.AppendTag(chat, 6, protowire.BytesType)
	chat = protowire.AppendBytes(chat, []byte(content))
	chat = protowire.AppendTag(chat, 7, protowire.BytesType)
	chat = protowire.AppendBytes(chat, mod)

	var payload []byte
	payload = protowire.AppendTag(payload, 1, protowire.BytesType)
	payload = protowire.AppendBytes(payload, chat)

	var msg []byte
	msg = protowire.AppendTag(msg, 1, protowire.BytesType)
	msg = protowire.AppendBytes(msg, meta)
	msg = protowire.AppendTag(msg, 2, protowire.BytesType)
	msg = protowire.AppendBytes(msg, payload)
	return msg
}

// packedSegment encodes a PackedSegment carrying messages at the given
// timestamps (one per content string, paired index-for-index) plus an
// optional next uri ("" for none).
func packedSegment(idPrefix string, seconds []int64, contents []string, nextURI string) []byte {
	var out []byte
	for i := range contents {
		msg := chunkedMessage(idPrefix+contents[i], seconds[i], contents[i])
		out = protowire.AppendTag(out, 1, protowire.BytesType)
		out = protowire.AppendBytes(out, msg)
	}
	if nextURI != "" {
		var next []byte
		next = protowire.AppendTag(next, 1, protowire.BytesType)
		next = protowire.AppendBytes(next, []byte(nextURI))
		out = protowire.AppendTag(out, 2, protowire.BytesType)
		out = protowire.AppendBytes(out, next)
	}
	return out
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.New(0)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return sess
}

// Scenario 6 (spec.md §8): three packed segments arrive in chain order
// Pa (10 msgs, ts 100-109) -> Pb (10 msgs, ts 90-99) -> Pc (5 msgs, ts
// 85-89, no next). The walker must return all 25 comments with a strictly
// non-decreasing timestamp sequence 85..109.
func TestWalker_Scenario6_BackwardChainProducesAscendingHistory(t *testing.T) {
	seqA := make([]int64, 10)
	contentsA := make([]string, 10)
	for i := 0; i < 10; i++ {
		seqA[i] = 100 + int64(i)
		contentsA[i] = "a"
	}
	seqB := make([]int64, 10)
	contentsB := make([]string, 10)
	for i := 0; i < 10; i++ {
		seqB[i] = 90 + int64(i)
		contentsB[i] = "b"
	}
	seqC := make([]int64, 5)
	contentsC := make([]string, 5)
	for i := 0; i < 5; i++ {
		seqC[i] = 85 + int64(i)
		contentsC[i] = "c"
	}

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		w.Write(frame(backwardEntry(srv.URL + "/pa")))
	})
	mux.HandleFunc("/pa", func(w http.ResponseWriter, r *http.Request) {
		w.Write(packedSegment("pa-", seqA, contentsA, srv.URL+"/pb"))
	})
	mux.HandleFunc("/pb", func(w http.ResponseWriter, r *http.Request) {
		w.Write(packedSegment("pb-", seqB, contentsB, srv.URL+"/pc"))
	})
	mux.HandleFunc("/pc", func(w http.ResponseWriter, r *http.Request) {
		w.Write(packedSegment("pc-", seqC, contentsC, ""))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	w := New(newTestSession(t))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	comments, err := w.Download(ctx, srv.URL+"/view")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comments) != 25 {
		t.Fatalf("expected 25 comments, got %d", len(comments))
	}

	// Invariant 2 (spec.md §8): for all successful back-downloads,
	// Ci.At <= Ci+1.At.
	for i := 1; i < len(comments); i++ {
		if comments[i-1].At.After(comments[i].At) {
			t.Fatalf("timestamps not ascending at index %d: %v then %v", i, comments[i-1].At, comments[i].At)
		}
	}
	if comments[0].At.Unix() != 85 || comments[len(comments)-1].At.Unix() != 109 {
		t.Fatalf("unexpected timestamp range: first=%v last=%v", comments[0].At, comments[len(comments)-1].At)
	}
}

func TestWalker_NonOKDuringWalkIsSurfacedImmediately(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		w.Write(frame(backwardEntry(srv.URL + "/pa")))
	})
	calls := 0
	mux.HandleFunc("/pa", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	w := New(newTestSession(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := w.Download(ctx, srv.URL+"/view")
	if err == nil {
		t.Fatalf("expected an error from the 403 response")
	}
	if calls != 1 {
		t.Fatalf("expected no retry of the failed fetch, server saw %d calls", calls)
	}
}
