package segment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nicolive/ndgr-client/internal/model"
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

func chunkedMessage(id string, content string) []byte {
	var chatOrigin []byte
	chatOrigin = protowire.AppendTag(chatOrigin, 1, protowire.VarintType)
	chatOrigin = protowire.AppendVarint(chatOrigin, 42)

	var origin []byte
	origin = protowire.AppendTag(origin, 1, protowire.BytesType)
	origin = protowire.AppendBytes(origin, chatOrigin)

	var meta []byte
	meta = protowire.AppendTag(meta, 1, protowire.BytesType)
	meta = protowire.AppendBytes(meta, []byte(id))
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

func TestPool_StartDrainsCommentsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(frame(chunkedMessage("c1", "hello")))
		w.Write(frame(chunkedMessage("c2", "world")))
	}))
	defer srv.Close()

	out := make(chan model.Comment, 8)
	pool := New(srv.Client(), out)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool.Start(ctx, model.SegmentDescriptor{URI: srv.URL})
	pool.Wait()
	close(out)

	var got []model.Comment
	for c := range out {
		got = append(got, c)
	}
	if len(got) != 2 || got[0].Content != "hello" || got[1].Content != "world" {
		t.Fatalf("unexpected comments: %+v", got)
	}
	if got[0].LiveID != 42 {
		t.Fatalf("unexpected live id: %d", got[0].LiveID)
	}
}

func TestPool_StartIsIdempotentPerURI(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	out := make(chan model.Comment, 8)
	pool := New(srv.Client(), out)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	desc := model.SegmentDescriptor{URI: srv.URL}
	pool.Start(ctx, desc)
	pool.Start(ctx, desc)
	pool.Wait()

	if hits != 1 {
		t.Fatalf("expected exactly one worker to have started, server saw %d hits", hits)
	}
}
