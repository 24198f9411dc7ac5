// Package watchpage resolves a program handle to a ProgramInfo snapshot by
// scraping the nicolive watch page's embedded JSON (spec.md §4.C), with the
// stale-handle channel fallback and timeshift activation steps the spec
// requires. Grounded on
// _examples/original_source/ndgr_client/ndgr_client.py's parseWatchPage
// (BeautifulSoup find(id='embedded-data').get('data-props')), ported to
// goquery, the Go ecosystem's BeautifulSoup-equivalent.
package watchpage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/nicolive/ndgr-client/internal/model"
	"github.com/nicolive/ndgr-client/internal/ndgrerr"
	"github.com/nicolive/ndgr-client/internal/session"
)

const frontendID = "9"

// requestTimeout bounds each one-shot GET/POST/PATCH this package issues
// (spec.md §5: "Non-streaming GETs: 15s"). It does not apply to the
// streaming comment/segment fetches elsewhere in the module.
const requestTimeout = 15 * time.Second

// staleHandleGrace is how long after a channel program's declared end time
// the resolver still trusts the watch page's own answer before consulting
// the channel's live index (spec.md §4.C step 2).
const staleHandleGrace = 300 * time.Second

// embeddedData mirrors the subset of the watch page's data-props JSON this
// client reads (spec.md §6); field names are the embedded JSON's own.
type embeddedData struct {
	Program struct {
		NicoliveProgramID string `json:"nicoliveProgramId"`
		Title             string `json:"title"`
		Description       string `json:"description"`
		Status            string `json:"status"`
		OpenTime          int64  `json:"openTime"`
		BeginTime         int64  `json:"beginTime"`
		VposBaseTime      int64  `json:"vposBaseTime"`
		EndTime           int64  `json:"endTime"`
		ScheduledEndTime  int64  `json:"scheduledEndTime"`
	} `json:"program"`
	Site struct {
		Relive struct {
			WebSocketURL string `json:"webSocketUrl"`
		} `json:"relive"`
	} `json:"site"`
}

// defaultBaseURL is the live site Resolve scrapes in production. Tests
// substitute an httptest server's URL via newWithBaseURL so the stale-handle
// fallback and timeshift activation steps can be exercised without a real
// network dependency.
const defaultBaseURL = "https://live.nicovideo.jp"

// Resolver resolves program handles against the live site.
type Resolver struct {
	sess    *session.Session
	baseURL string
}

// New builds a Resolver bound to sess.
func New(sess *session.Session) *Resolver {
	return newWithBaseURL(sess, defaultBaseURL)
}

func newWithBaseURL(sess *session.Session, baseURL string) *Resolver {
	return &Resolver{sess: sess, baseURL: baseURL}
}

// Resolve implements spec.md §4.C's four-step procedure for handle.
// handle is either a program id-form handle ("lv12345") or a channel-form
// handle ("jk1", a channel alias, or a raw channel id): isChannelHandle
// tells Resolve which watch-page URL shape and which fallback/timeshift
// rules apply.
func (r *Resolver) Resolve(ctx context.Context, handle string, isChannelHandle bool) (model.ProgramInfo, error) {
	info, err := r.fetchWatchPage(ctx, r.watchPageURL(handle, isChannelHandle))
	if err != nil {
		return model.ProgramInfo{}, err
	}

	if isChannelHandle && info.Status == model.StatusEnded &&
		time.Now().After(info.EndTime.Add(staleHandleGrace)) {
		if fresher, ok := r.tryStaleHandleFallback(ctx, handle, info.ProgramID); ok {
			info = fresher
		}
	}

	if info.Status == model.StatusEnded && info.WebSocketURL == "" && r.sess.LoggedIn() {
		activated, err := r.activateTimeshift(ctx, info.ProgramID)
		if err != nil {
			logrus.WithField("component", "watchpage").WithError(err).Warn("timeshift activation failed")
			return model.ProgramInfo{}, err
		}
		info = activated
	}

	return info, nil
}

func (r *Resolver) watchPageURL(handle string, isChannelHandle bool) string {
	if isChannelHandle {
		return r.baseURL + "/rekari/" + handle
	}
	return r.baseURL + "/watch/" + handle
}

func (r *Resolver) fetchWatchPage(ctx context.Context, url string) (model.ProgramInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := r.sess.Get(ctx, url)
	if err != nil {
		return model.ProgramInfo{}, ndgrerr.NewTransport("watchpage.fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.ProgramInfo{}, ndgrerr.NewTransport("watchpage.fetch",
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return model.ProgramInfo{}, ndgrerr.NewProtocol("watch page is not valid HTML: %v", err)
	}

	props, ok := doc.Find("#embedded-data").Attr("data-props")
	if !ok {
		return model.ProgramInfo{}, ndgrerr.NewProtocol("watch page has no embedded-data element")
	}

	var data embeddedData
	if err := json.Unmarshal([]byte(props), &data); err != nil {
		return model.ProgramInfo{}, ndgrerr.NewProtocol("embedded-data is not valid JSON: %v", err)
	}

	return embeddedDataToProgramInfo(data), nil
}

func embeddedDataToProgramInfo(data embeddedData) model.ProgramInfo {
	return model.ProgramInfo{
		ProgramID:        data.Program.NicoliveProgramID,
		Title:            data.Program.Title,
		Description:      data.Program.Description,
		Status:           model.ProgramStatus(data.Program.Status),
		OpenTime:         time.Unix(data.Program.OpenTime, 0).UTC(),
		BeginTime:        time.Unix(data.Program.BeginTime, 0).UTC(),
		EndTime:          time.Unix(data.Program.EndTime, 0).UTC(),
		ScheduledEndTime: time.Unix(data.Program.ScheduledEndTime, 0).UTC(),
		VposBaseTime:     time.Unix(data.Program.VposBaseTime, 0).UTC(),
		WebSocketURL:     data.Site.Relive.WebSocketURL,
	}
}

// tryStaleHandleFallback scrapes the channel's live-index page for the
// currently-live program id; any failure here is swallowed per spec.md
// §4.C step 2, returning ok=false so the caller keeps the original info.
func (r *Resolver) tryStaleHandleFallback(ctx context.Context, channelHandle, currentProgramID string) (model.ProgramInfo, bool) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := r.sess.Get(ctx, r.baseURL+"/"+channelHandle+"/live")
	if err != nil {
		return model.ProgramInfo{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.ProgramInfo{}, false
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return model.ProgramInfo{}, false
	}

	liveNow := doc.Find("#live_now")
	link, ok := liveNow.Find("a").First().Attr("href")
	if !ok {
		return model.ProgramInfo{}, false
	}
	liveProgramID := lastPathSegment(link)
	if liveProgramID == "" || liveProgramID == currentProgramID {
		return model.ProgramInfo{}, false
	}

	fresher, err := r.fetchWatchPage(ctx, r.watchPageURL(liveProgramID, false))
	if err != nil {
		return model.ProgramInfo{}, false
	}
	return fresher, true
}

func lastPathSegment(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// activateTimeshift implements spec.md §4.C step 3: reserve then begin
// timeshift viewing, then re-fetch ProgramInfo.
func (r *Resolver) activateTimeshift(ctx context.Context, programID string) (model.ProgramInfo, error) {
	url := r.baseURL + "/api/v2/programs/" + programID + "/timeshift/reservation"

	if err := r.timeshiftRequest(ctx, http.MethodPost, url); err != nil {
		return model.ProgramInfo{}, err
	}
	if err := r.timeshiftRequest(ctx, http.MethodPatch, url); err != nil {
		return model.ProgramInfo{}, err
	}

	refreshed, err := r.fetchWatchPage(ctx, r.watchPageURL(programID, false))
	if err != nil {
		return model.ProgramInfo{}, err
	}
	if refreshed.WebSocketURL == "" {
		return model.ProgramInfo{}, ndgrerr.NewProtocol("timeshift activation did not yield a websocket url")
	}
	return refreshed, nil
}

// timeshiftErrorDuplicated is the known "already reserved" code the POST
// reservation step tolerates alongside 200 (spec.md §4.C step 3).
const timeshiftErrorDuplicated = "DUPLICATED"

func (r *Resolver) timeshiftRequest(ctx context.Context, method, url string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-frontend-id", frontendID)

	resp, err := r.sess.Do(req)
	if err != nil {
		return ndgrerr.NewTransport("watchpage.timeshift", err)
	}
	defer resp.Body.Close()

	var body struct {
		Meta struct {
			ErrorCode string `json:"errorCode"`
		} `json:"meta"`
	}
	json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if method == http.MethodPost && body.Meta.ErrorCode == timeshiftErrorDuplicated {
		return nil
	}
	return ndgrerr.NewAuth("timeshift %s rejected: %s", method, resp.Status)
}
