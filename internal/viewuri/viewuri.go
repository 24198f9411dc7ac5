// Package viewuri opens the WebSocket handshake that hands back the View
// stream's entry point (spec.md §4.D). The client/server frame exchange is
// plain text JSON, following the same gorilla/websocket
// Dial/WriteMessage/ReadMessage shape the pack's dashboard hub
// (other_examples) uses on the server side of a connection.
package viewuri

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nicolive/ndgr-client/internal/ndgrerr"
)

const startWatchingFrame = `{"type":"startWatching","data":{"reconnect":false}}`

type serverFrame struct {
	Type string `json:"type"`
	Data struct {
		ViewURI string `json:"viewUri"`
	} `json:"data"`
}

// Acquire dials wsURL, sends the startWatching frame, and returns the first
// messageServer frame's viewUri. userAgent matches the session's own
// User-Agent so the handshake looks like the same browser that loaded the
// watch page.
func Acquire(ctx context.Context, wsURL, userAgent string) (string, error) {
	header := http.Header{}
	header.Set("User-Agent", userAgent)

	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return "", ndgrerr.NewTransport("viewuri.Acquire", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(startWatchingFrame)); err != nil {
		return "", ndgrerr.NewTransport("viewuri.Acquire", err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return "", ndgrerr.NewProtocol("websocket closed before a messageServer frame arrived: %v", err)
		}

		var frame serverFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			// Malformed frames from the server are ignored, per spec.md §4.D
			// "any other frame is ignored" — treat unparsable the same way.
			continue
		}
		if frame.Type != "messageServer" {
			continue
		}
		if frame.Data.ViewURI == "" {
			return "", ndgrerr.NewProtocol("messageServer frame carried an empty viewUri")
		}
		return frame.Data.ViewURI, nil
	}
}
