package ndgr

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nicolive/ndgr-client/internal/backward"
	"github.com/nicolive/ndgr-client/internal/channelmap"
	"github.com/nicolive/ndgr-client/internal/model"
	"github.com/nicolive/ndgr-client/internal/ndgrerr"
	"github.com/nicolive/ndgr-client/internal/session"
	"github.com/nicolive/ndgr-client/internal/supervisor"
	"github.com/nicolive/ndgr-client/internal/viewuri"
	"github.com/nicolive/ndgr-client/internal/watchpage"
)

// Client is the library's entry point: one long-lived session plus a
// channel alias table (spec.md §9 "one session per client instance"). Each
// Client seeds its own alias table from the built-in bootstrap snapshot; an
// UpdateChannelAliasMap on one Client does not change the table of another.
type Client struct {
	sess     *session.Session
	resolver *watchpage.Resolver
	aliasMap *channelmap.AliasMap
	walker   *backward.Walker
}

// NewClient builds a Client. If opts carries login credentials it logs the
// session in immediately, the same way spec.md §6 describes credentials
// being supplied once at construction rather than per operation.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	// timeout=0: no client-wide http.Client.Timeout. A non-zero value here
	// would clamp every request through this session, including the
	// long-running streaming GETs internal/fetch issues over the same
	// client — those are bounded by their own read-idle watchdog instead.
	sess, err := session.New(0)
	if err != nil {
		return nil, err
	}

	if opts.loginConfigured() {
		if err := sess.Login(ctx, opts.LoginMail, opts.LoginPassword); err != nil {
			return nil, err
		}
	}

	return &Client{
		sess:     sess,
		resolver: watchpage.New(sess),
		aliasMap: channelmap.New(),
		walker:   backward.New(sess),
	}, nil
}

// CommentStream is a live comment stream in progress, mirroring
// bufio.Scanner's Comments()/Err() idiom: range over Comments() until it
// closes, then check Err() for the reason.
type CommentStream struct {
	comments <-chan model.Comment
	sup      *supervisor.Supervisor
}

// Comments returns the channel of comments in arrival order. It closes when
// the stream ends or its context is cancelled.
func (s *CommentStream) Comments() <-chan Comment {
	return s.comments
}

// Err reports the error that ended the stream, if any; nil means a clean
// ENDED or cancellation (spec.md §4.G).
func (s *CommentStream) Err() error {
	return s.sup.Err()
}

// StreamComments implements spec.md §6's streamComments operation: resolves
// handle (a program id like "lv12345", a channel alias like "jk1", or a raw
// channel handle like "kl11") and begins streaming its live comments,
// transparently handling ENDED/RESTART handoff for channel handles.
func (c *Client) StreamComments(ctx context.Context, handle string) (*CommentStream, error) {
	resolved, isChannelHandle := c.resolveHandle(handle)
	log := c.callLogger("streamComments", handle)

	sup := supervisor.New(c.sess, c.resolver, resolved, isChannelHandle,
		supervisor.DefaultMonitorCadence, supervisor.DefaultMonitorOffset)
	comments, err := sup.Stream(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to start comment stream")
		return nil, err
	}
	log.Info("comment stream started")
	return &CommentStream{comments: comments, sup: sup}, nil
}

// DownloadBackward implements spec.md §6's downloadBackward operation:
// resolves handle, acquires its current view URI, and walks the full
// packed-segment history backward, returning it in ascending order.
func (c *Client) DownloadBackward(ctx context.Context, handle string) ([]Comment, error) {
	resolved, isChannelHandle := c.resolveHandle(handle)
	log := c.callLogger("downloadBackward", handle)

	info, err := c.resolver.Resolve(ctx, resolved, isChannelHandle)
	if err != nil {
		return nil, err
	}
	if info.WebSocketURL == "" {
		return nil, ndgrerr.NewInput("program %s has no websocket url to acquire a view uri from", info.ProgramID)
	}

	viewURI, err := viewuri.Acquire(ctx, info.WebSocketURL, c.sess.UserAgent())
	if err != nil {
		return nil, err
	}

	comments, err := c.walker.Download(ctx, viewURI)
	if err != nil {
		log.WithError(err).Warn("backward download failed")
		return nil, err
	}
	log.WithField("comment_count", len(comments)).Info("backward download complete")
	return comments, nil
}

// UpdateChannelAliasMap implements spec.md §4.I's updateChannelAliasMap:
// build is caller-supplied since spec.md leaves the scrape source itself
// "defined in the external interface only" — Client owns only the
// atomic-swap contract, not a hardcoded scrape target.
func (c *Client) UpdateChannelAliasMap(ctx context.Context, build func(ctx context.Context) (map[string]string, error)) error {
	return c.aliasMap.Update(ctx, build)
}

// ListProgramsOn implements spec.md §4.I's listProgramsOn: best-effort
// enumeration of channelAlias's programs whose start time falls on date's
// calendar day, ascending by start time, with timeshift-disabled programs
// filtered out. A program that started on an earlier day is not listed.
func (c *Client) ListProgramsOn(ctx context.Context, date time.Time, channelAlias string) ([]ProgramListing, error) {
	handle, ok := c.aliasMap.Resolve(channelAlias)
	if !ok {
		handle = channelAlias
	}
	return channelmap.ListProgramsOn(ctx, c.sess, handle, date)
}

// Aliases returns every jikkyo alias currently known to the channel map, in
// ascending order (the "all" target of the download CLI subcommand
// iterates this list).
func (c *Client) Aliases() []string {
	return c.aliasMap.Aliases()
}

// resolveHandle classifies handle per spec.md §3's ProgramHandle: a
// program-id handle ("lv" prefixed) is used as-is; anything else is looked
// up in the alias map first, falling back to treating it as an already-raw
// channel handle (e.g. "kl11" passed directly, not via a jikkyo alias).
func (c *Client) resolveHandle(handle string) (resolved string, isChannelHandle bool) {
	if strings.HasPrefix(handle, "lv") {
		return handle, false
	}
	if raw, ok := c.aliasMap.Resolve(handle); ok {
		return raw, true
	}
	return handle, true
}

func (c *Client) callLogger(op, handle string) *logrus.Entry {
	return logrus.WithField("component", "ndgr").
		WithField("op", op).
		WithField("handle", handle).
		WithField("correlation_id", uuid.NewString())
}
