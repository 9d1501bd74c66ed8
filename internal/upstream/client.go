// Package upstream implements C9: a typed, resilient HTTP client for the
// broadcast/VOD platform, grounded structurally on xg2g's
// internal/openwebif.Client (Basic auth, rate limiter, circuit breaker,
// bounded retry with exponential backoff, typed error surfacing).
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/flexcoop/archivist/internal/errs"
	"github.com/flexcoop/archivist/internal/log"
)

// Error is the typed UpstreamError spec.md §4.9 requires on non-2xx
// responses.
type Error struct {
	Status   int
	Message  string
	Endpoint string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream %s: %d %s", e.Endpoint, e.Status, e.Message)
}

// Options configures Client construction.
type Options struct {
	BaseURL      string
	User         string
	Password     string
	BearerToken  string
	Timeout      time.Duration
	MaxRetries   int
	RetryBase    time.Duration
	RateLimit    rate.Limit
	RateBurst    int
}

// Client is a typed broadcast/VOD platform client.
type Client struct {
	base       string
	user       string
	password   string
	bearer     string
	http       *http.Client
	maxRetries int
	retryBase  time.Duration
	limiter    *rate.Limiter
	cb         *CircuitBreaker
}

// New constructs a Client from opts, applying spec.md §4.9 defaults.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}
	return &Client{
		base:       opts.BaseURL,
		user:       opts.User,
		password:   opts.Password,
		bearer:     opts.BearerToken,
		http:       &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBase,
		limiter:    rate.NewLimiter(opts.RateLimit, opts.RateBurst),
		cb:         NewCircuitBreaker(5, time.Minute, 30*time.Second),
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
		return
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		return true
	}
	return status >= 500
}

func (c *Client) backoffFor(attempt int) time.Duration {
	factor := time.Duration(1)
	for i := 1; i < attempt; i++ {
		factor *= 2
	}
	return c.retryBase * factor
}

// do issues method against path with an optional JSON body, retrying on
// network errors and 5xx per spec.md §4.9, surfacing 4xx immediately as
// *Error, and decoding a successful body into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	logger := log.WithComponent("upstream")

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errs.Wrap(errs.KindUpstreamRejected, "encode request body", err)
		}
	}

	maxAttempts := c.maxRetries + 1
	var lastErr error
	var lastStatus int
	var lastData []byte

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !c.cb.Allow() {
			return errs.New(errs.KindUpstreamUnavailable, "circuit breaker open for upstream")
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return errs.Wrap(errs.KindUpstreamUnavailable, "rate limiter wait", err)
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
		if err != nil {
			return errs.Wrap(errs.KindUpstreamRejected, "build request", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.authorize(req)

		res, err := c.http.Do(req)
		var status int
		var data []byte
		if res != nil {
			status = res.StatusCode
			data, _ = io.ReadAll(io.LimitReader(res.Body, 1<<20))
			_ = res.Body.Close()
		}

		success := err == nil && status >= 200 && status < 300
		retry := !success && attempt < maxAttempts && shouldRetry(status, err)

		if success {
			c.cb.RecordSuccess()
			if out != nil && len(data) > 0 {
				if decErr := json.Unmarshal(data, out); decErr != nil {
					return errs.Wrap(errs.KindUpstreamRejected, "decode response", decErr)
				}
			}
			return nil
		}

		lastErr, lastStatus, lastData = err, status, data
		if !retry {
			break
		}
		c.cb.RecordFailure()

		wait := c.backoffFor(attempt)
		logger.Warn().Str("path", path).Int("attempt", attempt).Dur("retry_in", wait).Msg("upstream call failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	if lastStatus > 0 && lastStatus < 500 {
		return errs.Wrap(errs.KindUpstreamRejected, fmt.Sprintf("status %d", lastStatus),
			&Error{Status: lastStatus, Message: string(lastData), Endpoint: path})
	}
	c.cb.RecordFailure()
	return errs.Wrap(errs.KindUpstreamUnavailable, "upstream request exhausted retries",
		&Error{Status: lastStatus, Message: errMsg(lastErr, lastData), Endpoint: path})
}

func errMsg(err error, data []byte) string {
	if err != nil {
		return err.Error()
	}
	return string(data)
}

// GetShows lists shows, optionally filtered by location.
func (c *Client) GetShows(ctx context.Context, location string) ([]Show, error) {
	path := "/api/shows"
	if location != "" {
		path += "?location=" + url.QueryEscape(location)
	}
	var shows []Show
	if err := c.do(ctx, http.MethodGet, path, nil, &shows); err != nil {
		return nil, err
	}
	return shows, nil
}

// GetShow fetches a single show by id.
func (c *Client) GetShow(ctx context.Context, id string) (Show, error) {
	var s Show
	err := c.do(ctx, http.MethodGet, "/api/shows/"+url.PathEscape(id), nil, &s)
	return s, err
}

// CreateShow creates a new show record.
func (c *Client) CreateShow(ctx context.Context, s Show) (Show, error) {
	var out Show
	err := c.do(ctx, http.MethodPost, "/api/shows", s, &out)
	return out, err
}

// UpdateShow updates an existing show record.
func (c *Client) UpdateShow(ctx context.Context, s Show) (Show, error) {
	var out Show
	err := c.do(ctx, http.MethodPut, "/api/shows/"+url.PathEscape(s.ID), s, &out)
	return out, err
}

// GetVODs lists VODs, optionally filtered by show id.
func (c *Client) GetVODs(ctx context.Context, showID string) ([]VOD, error) {
	path := "/api/vods"
	if showID != "" {
		path += "?show=" + url.QueryEscape(showID)
	}
	var vods []VOD
	if err := c.do(ctx, http.MethodGet, path, nil, &vods); err != nil {
		return nil, err
	}
	return vods, nil
}

// GetVOD fetches a single VOD by id.
func (c *Client) GetVOD(ctx context.Context, id string) (VOD, error) {
	var v VOD
	err := c.do(ctx, http.MethodGet, "/api/vods/"+url.PathEscape(id), nil, &v)
	return v, err
}

// CreateVOD creates a new VOD record.
func (c *Client) CreateVOD(ctx context.Context, v VOD) (VOD, error) {
	var out VOD
	err := c.do(ctx, http.MethodPost, "/api/vods", v, &out)
	return out, err
}

// UpdateVODMetadata updates fields on an existing VOD (spec.md §4.10's
// "transcription_available" flag flows through here).
func (c *Client) UpdateVODMetadata(ctx context.Context, id string, fields map[string]interface{}) (VOD, error) {
	var out VOD
	err := c.do(ctx, http.MethodPatch, "/api/vods/"+url.PathEscape(id), fields, &out)
	return out, err
}

// DeleteVOD removes a VOD record.
func (c *Client) DeleteVOD(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/vods/"+url.PathEscape(id), nil, nil)
}

// GetVODStatus polls processing status for a single VOD.
func (c *Client) GetVODStatus(ctx context.Context, id string) (VOD, error) {
	var v VOD
	err := c.do(ctx, http.MethodGet, "/api/vods/"+url.PathEscape(id)+"/status", nil, &v)
	return v, err
}

// GetVODChapters lists chapters for a VOD.
func (c *Client) GetVODChapters(ctx context.Context, vodID string) ([]Chapter, error) {
	var chapters []Chapter
	err := c.do(ctx, http.MethodGet, "/api/vods/"+url.PathEscape(vodID)+"/chapters", nil, &chapters)
	return chapters, err
}

// CreateVODChapter adds a chapter to a VOD.
func (c *Client) CreateVODChapter(ctx context.Context, ch Chapter) (Chapter, error) {
	var out Chapter
	err := c.do(ctx, http.MethodPost, "/api/vods/"+url.PathEscape(ch.VODID)+"/chapters", ch, &out)
	return out, err
}

// UpdateVODChapter updates an existing chapter.
func (c *Client) UpdateVODChapter(ctx context.Context, ch Chapter) (Chapter, error) {
	var out Chapter
	err := c.do(ctx, http.MethodPut, "/api/vods/"+url.PathEscape(ch.VODID)+"/chapters/"+url.PathEscape(ch.ID), ch, &out)
	return out, err
}

// DeleteVODChapter removes a chapter.
func (c *Client) DeleteVODChapter(ctx context.Context, vodID, chapterID string) error {
	return c.do(ctx, http.MethodDelete, "/api/vods/"+url.PathEscape(vodID)+"/chapters/"+url.PathEscape(chapterID), nil, nil)
}

// GetLocations lists configured broadcast locations.
func (c *Client) GetLocations(ctx context.Context) ([]Location, error) {
	var locs []Location
	err := c.do(ctx, http.MethodGet, "/api/locations", nil, &locs)
	return locs, err
}

// GetVODQualities lists available encode quality profiles.
func (c *Client) GetVODQualities(ctx context.Context) ([]Quality, error) {
	var q []Quality
	err := c.do(ctx, http.MethodGet, "/api/qualities", nil, &q)
	return q, err
}

// GetRuns lists scheduled runs in [start, end), optionally filtered by
// channel and/or location (spec.md §4.11's schedule source).
func (c *Client) GetRuns(ctx context.Context, start, end time.Time, channel, location string) ([]RunEntry, error) {
	q := url.Values{}
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	if channel != "" {
		q.Set("channel", channel)
	}
	if location != "" {
		q.Set("location", location)
	}
	var runs []RunEntry
	err := c.do(ctx, http.MethodGet, "/api/runs?"+q.Encode(), nil, &runs)
	return runs, err
}

// TestConnection verifies reachability and credentials against upstream.
func (c *Client) TestConnection(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/ping", nil, nil)
}

// HasCaptions reports whether vodID currently carries a caption sidecar,
// used by C13's daily audit (spec.md §4.13: "ask C9 whether captions are
// present"). A populated WebVTT URL is upstream's signal that a sidecar
// has been attached; see C10's AttachSidecar for the write side.
func (c *Client) HasCaptions(ctx context.Context, vodID string) (bool, error) {
	v, err := c.GetVOD(ctx, vodID)
	if err != nil {
		return false, err
	}
	return v.WebVTTURL != "", nil
}

// LatestShowForLocation returns the most recent (by Date) show scheduled
// at location, used by C13 to find each city's current program. location
// is a broadcast location or channel identifier; spec.md §4.11 treats the
// two as interchangeable disambiguation keys.
func (c *Client) LatestShowForLocation(ctx context.Context, location string) (Show, bool, error) {
	shows, err := c.GetShows(ctx, location)
	if err != nil {
		return Show{}, false, err
	}
	if len(shows) == 0 {
		return Show{}, false, nil
	}
	latest := shows[0]
	for _, s := range shows[1:] {
		if s.Date.After(latest.Date) {
			latest = s
		}
	}
	return latest, true, nil
}

// UploadVODFile uploads the video file at path as the primary asset for
// VOD id.
func (c *Client) UploadVODFile(ctx context.Context, id, path string) error {
	return c.uploadMultipart(ctx, "/api/vods/"+url.PathEscape(id)+"/file", "file", path)
}

// UploadVODCaption uploads an SRT/SCC caption sidecar for VOD id.
func (c *Client) UploadVODCaption(ctx context.Context, id, captionPath string) error {
	return c.uploadMultipart(ctx, "/api/vods/"+url.PathEscape(id)+"/caption", "caption", captionPath)
}

func (c *Client) uploadMultipart(ctx context.Context, path, field, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errs.Wrap(errs.KindInputUnreadable, "open file for upload", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filepath.Base(filePath))
	if err != nil {
		return errs.Wrap(errs.KindUpstreamRejected, "build multipart part", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return errs.Wrap(errs.KindUpstreamRejected, "copy file into multipart body", err)
	}
	if err := mw.Close(); err != nil {
		return errs.Wrap(errs.KindUpstreamRejected, "close multipart writer", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &buf)
	if err != nil {
		return errs.Wrap(errs.KindUpstreamRejected, "build upload request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	if !c.cb.Allow() {
		return errs.New(errs.KindUpstreamUnavailable, "circuit breaker open for upstream")
	}
	res, err := c.http.Do(req)
	if err != nil {
		c.cb.RecordFailure()
		return errs.Wrap(errs.KindUpstreamUnavailable, "upload request failed", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 8192))
		c.cb.RecordFailure()
		return errs.Wrap(errs.KindUpstreamRejected, "non-2xx on upload",
			&Error{Status: res.StatusCode, Message: string(body), Endpoint: path})
	}
	c.cb.RecordSuccess()
	return nil
}

// WaitForVODProcessing polls GetVODStatus until the VOD reaches ready or
// error, or timeout elapses (spec.md §4.9).
func (c *Client) WaitForVODProcessing(ctx context.Context, id string, timeout, interval time.Duration) (VOD, error) {
	logger := log.WithComponent("upstream")
	deadline := time.Now().Add(timeout)
	for {
		v, err := c.GetVODStatus(ctx, id)
		if err != nil {
			return VOD{}, err
		}
		if v.State == VODReady || v.State == VODError {
			return v, nil
		}
		logger.Info().Str("vod_id", id).Str("state", string(v.State)).Int("percent", v.Percent).Msg("waiting for VOD processing")
		if time.Now().After(deadline) {
			return v, errs.New(errs.KindUpstreamUnavailable, "timed out waiting for VOD processing")
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-time.After(interval):
		}
	}
}
