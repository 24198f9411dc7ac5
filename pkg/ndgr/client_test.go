package ndgr

import (
	"context"
	"fmt"
	"testing"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), DefaultOptions())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestResolveHandle_ProgramIDPassesThroughUnresolved(t *testing.T) {
	c := newTestClient(t)

	resolved, isChannelHandle := c.resolveHandle("lv345479473")
	if isChannelHandle {
		t.Fatalf("expected a program-id handle to not be a channel handle")
	}
	if resolved != "lv345479473" {
		t.Fatalf("expected the program id unchanged, got %q", resolved)
	}
}

func TestResolveHandle_JikkyoAliasResolvesThroughTheMap(t *testing.T) {
	c := newTestClient(t)

	resolved, isChannelHandle := c.resolveHandle("jk1")
	if !isChannelHandle {
		t.Fatalf("expected jk1 to resolve as a channel handle")
	}
	if resolved != "kl11" {
		t.Fatalf("expected jk1 -> kl11, got %q", resolved)
	}
}

func TestResolveHandle_RawChannelHandlePassesThroughUnresolved(t *testing.T) {
	c := newTestClient(t)

	resolved, isChannelHandle := c.resolveHandle("kl11")
	if !isChannelHandle {
		t.Fatalf("expected an unknown alias to still be treated as a channel handle")
	}
	if resolved != "kl11" {
		t.Fatalf("expected the raw handle unchanged, got %q", resolved)
	}
}

func TestUpdateChannelAliasMap_RefreshesSubsequentResolution(t *testing.T) {
	c := newTestClient(t)

	err := c.UpdateChannelAliasMap(context.Background(), func(ctx context.Context) (map[string]string, error) {
		return map[string]string{"jk1": "kl99"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resolved, _ := c.resolveHandle("jk1")
	if resolved != "kl99" {
		t.Fatalf("expected jk1 to resolve to the refreshed handle, got %q", resolved)
	}
}

func TestUpdateChannelAliasMap_PropagatesBuildError(t *testing.T) {
	c := newTestClient(t)

	err := c.UpdateChannelAliasMap(context.Background(), func(ctx context.Context) (map[string]string, error) {
		return nil, fmt.Errorf("scrape failed")
	})
	if err == nil {
		t.Fatalf("expected the build error to propagate")
	}
}
