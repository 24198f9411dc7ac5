// Package session owns the one long-lived HTTP session a Client carries:
// cookies, default headers, and optional login credentials (spec.md §9
// "Ownership of HTTP sessions" — one session per client instance, with
// per-request overrides such as the timeshift frontend-id header passed
// locally rather than mutated onto the session).
package session

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nicolive/ndgr-client/internal/ndgrerr"
)

// connectTimeout bounds only the TCP connect + TLS handshake phase of a
// request, not the whole request/response lifetime (spec.md §5: "Connect/
// write: 15s"). It lives on the transport's dialer rather than on a
// per-request context deadline, because a context deadline would also cut
// off long-lived streaming reads (view/segment streams can run far longer
// than 15s) — internal/fetch's own read-idle watchdog is what bounds those.
const connectTimeout = 15 * time.Second

// LoginURL is the account host Login posts credentials to. It is a package
// variable rather than a constant so tests in this package and its
// consumers (e.g. internal/watchpage, which needs a logged-in Session to
// exercise the timeshift-activation path against an httptest server) can
// redirect it without a real network dependency.
var LoginURL = "https://account.nicovideo.jp/api/v1/login"

// Chrome 126 impersonation headers, matching the watch-page server's
// apparent browser-sniffing on the User-Agent and Sec-CH-UA headers.
const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	secChUA   = `"Chromium";v="126", "Google Chrome";v="126", "Not-A.Brand";v="99"`
)

// Session is a cookie-carrying HTTP client shared across every request one
// Client instance makes. It is safe for concurrent use: requests only read
// its configured headers and delegate cookie handling to the client's jar.
type Session struct {
	client     *http.Client
	niconicoID string
}

// New builds a Session with a fresh cookie jar and the given timeout set as
// the http.Client.Timeout, which bounds every request made through this
// session, including streaming requests issued on HTTPClient(). A timeout
// of 0 sets no such bound, leaving streaming reads to internal/fetch's
// read-idle watchdog.
func New(timeout time.Duration) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Session{
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}, nil
}

// HTTPClient returns the underlying client for components (fetch, wire
// fetch-based ones) that need to issue their own requests with their own
// deadlines; its Jar and default headers are shared, but those callers are
// responsible for calling Session.Prepare on each request.
func (s *Session) HTTPClient() *http.Client {
	return s.client
}

// UserAgent returns the browser-impersonation User-Agent every request
// through this session carries, for callers (e.g. the WebSocket handshake
// in internal/viewuri) that need to present the same identity outside of
// Session's own Get/Do.
func (s *Session) UserAgent() string {
	return userAgent
}

// Prepare attaches the session's default headers to req. Callers add any
// request-specific headers (e.g. x-frontend-id) after calling Prepare.
func (s *Session) Prepare(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Sec-CH-UA", secChUA)
}

// Get issues a GET request with the session's default headers.
func (s *Session) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	s.Prepare(req)
	return s.client.Do(req)
}

// Do issues req after attaching the session's default headers; it does not
// overwrite headers the caller already set.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if req.Header.Get("Sec-CH-UA") == "" {
		req.Header.Set("Sec-CH-UA", secChUA)
	}
	return s.client.Do(req)
}

// LoggedIn reports whether Login succeeded earlier in this session's life.
func (s *Session) LoggedIn() bool {
	return s.niconicoID != ""
}

// Login authenticates against the account host, capturing the
// x-niconico-id response header on success (spec.md §6). Failure is an
// *ndgrerr.AuthError; the session is left logged out.
func (s *Session) Login(ctx context.Context, mail, password string) error {
	form := url.Values{"mail": {mail}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.Do(req)
	if err != nil {
		return ndgrerr.NewTransport("session.Login", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	id := resp.Header.Get("x-niconico-id")
	if id == "" {
		return ndgrerr.NewAuth("login rejected: no x-niconico-id in response")
	}
	s.niconicoID = id
	logrus.WithField("component", "session").Info("login succeeded")
	return nil
}
