package services

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tabletally/config"
	"tabletally/internal/logger"
	"tabletally/internal/utils"

	"github.com/shopspring/decimal"
)

const (
	bggPlaysPerPage   = 100
	bggUserAgent      = "TableTally/1.0"
	bggRequestTimeout = 30 * time.Second
	backoffBase       = 1 * time.Second
)

// errStillProcessing marks a 202 poll-again response inside the retry loop
var errStillProcessing = errors.New("bgg: response still processing")

// BGGService is the client contract consumed by the sync pipelines
type BGGService interface {
	FetchThings(ctx context.Context, ids []int64) ([]BGGThing, error)
	FetchPlays(ctx context.Context, username string, minDate, maxDate time.Time) ([]BGGPlay, error)
	Login(ctx context.Context, username, password string) (*BGGSession, error)
	SubmitPlay(ctx context.Context, session *BGGSession, submission PlaySubmission) (int64, error)
}

// BGGSession is the credential returned by Login and consumed by SubmitPlay
type BGGSession struct {
	Username string
	Cookies  []*http.Cookie
}

// BGGThing is one catalog entry from the thing endpoint
type BGGThing struct {
	ID         int64        `xml:"id,attr"`
	Type       string       `xml:"type,attr"`
	Thumbnail  string       `xml:"thumbnail"`
	Image      string       `xml:"image"`
	Names      []bggName    `xml:"name"`
	YearPub    bggIntValue  `xml:"yearpublished"`
	MinPlayers bggIntValue  `xml:"minplayers"`
	MaxPlayers bggIntValue  `xml:"maxplayers"`
	PlayTime   bggIntValue  `xml:"playingtime"`
	Links      []bggLink    `xml:"link"`
	Statistics bggStatistics `xml:"statistics"`
}

// PrimaryName returns the canonical name of the thing, empty when absent
func (t BGGThing) PrimaryName() string {
	for _, name := range t.Names {
		if name.Type == "primary" {
			return name.Value
		}
	}
	if len(t.Names) > 0 {
		return t.Names[0].Value
	}
	return ""
}

// LinkValue returns the first link of the given type (publisher, designer)
func (t BGGThing) LinkValue(linkType string) string {
	for _, link := range t.Links {
		if link.Type == linkType {
			return link.Value
		}
	}
	return ""
}

func (t BGGThing) IsExpansion() bool {
	return t.Type == "boardgameexpansion"
}

type bggName struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

type bggIntValue struct {
	Value int `xml:"value,attr"`
}

// Ptr returns the value as a nullable field, treating zero as absent
func (v bggIntValue) Ptr() *int {
	if v.Value == 0 {
		return nil
	}
	value := v.Value
	return &value
}

type bggLink struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

type bggStatistics struct {
	Ratings struct {
		Average       bggFloatValue `xml:"average"`
		AverageWeight bggFloatValue `xml:"averageweight"`
	} `xml:"ratings"`
}

type bggFloatValue struct {
	Value string `xml:"value,attr"`
}

// Decimal parses the attribute into a nullable decimal, treating zero and
// unparseable values as absent
func (v bggFloatValue) Decimal() *decimal.Decimal {
	if v.Value == "" {
		return nil
	}
	d, err := decimal.NewFromString(v.Value)
	if err != nil || d.IsZero() {
		return nil
	}
	return &d
}

type bggThingDoc struct {
	XMLName xml.Name   `xml:"items"`
	Items   []BGGThing `xml:"item"`
}

// BGGPlay is one play record from the plays endpoint
type BGGPlay struct {
	ID       int64       `xml:"id,attr"`
	Date     string      `xml:"date,attr"`
	Location string      `xml:"location,attr"`
	Length   int         `xml:"length,attr"`
	Comments string      `xml:"comments"`
	Item     bggPlayItem `xml:"item"`
	Players  []BGGPlayer `xml:"players>player"`
}

type bggPlayItem struct {
	Name     string `xml:"name,attr"`
	ObjectID int64  `xml:"objectid,attr"`
}

// BGGPlayer is one seat in a fetched play. Username wins over Name when both
// are present; Name alone means an anonymous guest.
type BGGPlayer struct {
	Username      string `xml:"username,attr"`
	UserID        int64  `xml:"userid,attr"`
	Name          string `xml:"name,attr"`
	Score         string `xml:"score,attr"`
	Win           int    `xml:"win,attr"`
	New           int    `xml:"new,attr"`
	StartPosition string `xml:"startposition,attr"`
}

type bggPlaysDoc struct {
	XMLName xml.Name  `xml:"plays"`
	Total   int       `xml:"total,attr"`
	Page    int       `xml:"page,attr"`
	Plays   []BGGPlay `xml:"play"`
}

// PlaySubmission is the payload for creating or updating a play on BGG.
// PlayID set means update, unset means create.
type PlaySubmission struct {
	ObjectID   int64              `json:"objectid,string"`
	PlayID     *int64             `json:"playid,string,omitempty"`
	Date       string             `json:"playdate"`
	Length     *int               `json:"length,omitempty"`
	Location   string             `json:"location,omitempty"`
	Comments   string             `json:"comments,omitempty"`
	Quantity   int                `json:"quantity"`
	Players    []SubmissionPlayer `json:"players"`
	Expansions []int64            `json:"expansionids,omitempty"`
}

type SubmissionPlayer struct {
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Score    string `json:"score,omitempty"`
	Win      bool   `json:"win"`
	New      bool   `json:"new"`
	Position string `json:"position,omitempty"`
}

type bggSubmitResponse struct {
	PlayID string `json:"playid"`
	Error  string `json:"error,omitempty"`
}

// BGGClient talks to the BGG XML API. All requests flow through the shared
// rate gate; retries and backoff follow the configured limits.
type BGGClient struct {
	client  *http.Client
	gate    *BGGRateGate
	baseURL string
	log     logger.Logger

	maxIDsPerBatch       int
	maxRetryAttempts     int
	processingRetryDelay time.Duration
	backoffCap           time.Duration
}

func NewBGGClient(cfg config.Config, gate *BGGRateGate) *BGGClient {
	return &BGGClient{
		client: &http.Client{
			Timeout: bggRequestTimeout,
		},
		gate:                 gate,
		baseURL:              cfg.BGGBaseURL,
		log:                  logger.New("BGGClient"),
		maxIDsPerBatch:       cfg.SyncMaxIDsPerBatch,
		maxRetryAttempts:     cfg.SyncMaxRetryAttempts,
		processingRetryDelay: time.Duration(cfg.SyncProcessingRetrySeconds) * time.Second,
		backoffCap:           time.Duration(cfg.SyncBackoffCapSeconds) * time.Second,
	}
}

// FetchThings fetches catalog entries by BGG id, splitting oversized id
// lists into sequential batches
func (c *BGGClient) FetchThings(ctx context.Context, ids []int64) ([]BGGThing, error) {
	log := c.log.Function("FetchThings")

	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	var things []BGGThing
	for i := 0; i < len(ids); i += c.maxIDsPerBatch {
		end := i + c.maxIDsPerBatch
		if end > len(ids) {
			end = len(ids)
		}

		batch, err := c.fetchThingBatch(ctx, ids[i:end])
		if err != nil {
			return nil, log.Err("failed to fetch thing batch", err, "batchStart", i, "batchEnd", end)
		}
		things = append(things, batch...)
	}

	log.Info("Fetched things from BGG", "requested", len(ids), "received", len(things))
	return things, nil
}

func (c *BGGClient) fetchThingBatch(ctx context.Context, ids []int64) ([]BGGThing, error) {
	query := url.Values{}
	query.Set("id", joinIDs(ids))
	query.Set("stats", "1")

	body, err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/xmlapi2/thing?"+query.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}

	var doc bggThingDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, err.Error())
	}

	return doc.Items, nil
}

// FetchPlays returns the complete play listing for a user over a date range,
// following pagination until the reported total is reached. Completeness
// matters: the inbound pipeline reconciles deletions against this listing.
func (c *BGGClient) FetchPlays(
	ctx context.Context,
	username string,
	minDate, maxDate time.Time,
) ([]BGGPlay, error) {
	log := c.log.Function("FetchPlays")

	if username == "" {
		return nil, fmt.Errorf("%w: username is empty", ErrPermanentClient)
	}

	var plays []BGGPlay
	page := 1
	total := -1

	for {
		query := url.Values{}
		query.Set("username", username)
		query.Set("mindate", utils.FormatPlayDate(minDate))
		query.Set("maxdate", utils.FormatPlayDate(maxDate))
		query.Set("subtype", "boardgame")
		query.Set("page", strconv.Itoa(page))

		body, err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/xmlapi2/plays?"+query.Encode(), nil, nil)
		if err != nil {
			return nil, log.Err("failed to fetch plays page", err, "username", username, "page", page)
		}

		var doc bggPlaysDoc
		if err := xml.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, err.Error())
		}

		plays = append(plays, doc.Plays...)
		total = doc.Total

		if len(doc.Plays) == 0 || len(plays) >= total {
			break
		}
		page++
	}

	log.Info("Fetched plays from BGG", "username", username, "total", total, "received", len(plays))
	return plays, nil
}

// Login authenticates against BGG and returns the session cookies required
// for play submission
func (c *BGGClient) Login(ctx context.Context, username, password string) (*BGGSession, error) {
	log := c.log.Function("Login")

	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: empty username or password", ErrAuthenticationFailed)
	}

	payload, err := json.Marshal(map[string]any{
		"credentials": map[string]string{
			"username": username,
			"password": password,
		},
	})
	if err != nil {
		return nil, log.Err("failed to marshal login payload", err)
	}

	if err := c.gate.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/login/api/v1",
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, log.Err("failed to create login request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", bggUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransientNetwork, err.Error())
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// Session established via cookies
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: status %d", ErrAuthenticationFailed, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrTransientNetwork, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrPermanentClient, resp.StatusCode)
	}

	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return nil, fmt.Errorf("%w: login response carried no session cookies", ErrAuthenticationFailed)
	}

	log.Info("Authenticated against BGG", "username", username)
	return &BGGSession{Username: username, Cookies: cookies}, nil
}

// SubmitPlay creates or updates a play on BGG and returns the external play id
func (c *BGGClient) SubmitPlay(
	ctx context.Context,
	session *BGGSession,
	submission PlaySubmission,
) (int64, error) {
	log := c.log.Function("SubmitPlay")

	if session == nil || len(session.Cookies) == 0 {
		return 0, fmt.Errorf("%w: no session", ErrAuthenticationFailed)
	}

	if submission.Quantity == 0 {
		submission.Quantity = 1
	}

	body := map[string]any{
		"ajax":       1,
		"action":     "save",
		"objecttype": "thing",
		"objectid":   strconv.FormatInt(submission.ObjectID, 10),
		"playdate":   submission.Date,
		"location":   submission.Location,
		"comments":   submission.Comments,
		"quantity":   submission.Quantity,
		"players":    submission.Players,
	}
	if submission.PlayID != nil {
		body["playid"] = strconv.FormatInt(*submission.PlayID, 10)
	}
	if submission.Length != nil {
		body["length"] = *submission.Length
	}
	if len(submission.Expansions) > 0 {
		body["expansionids"] = submission.Expansions
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, log.Err("failed to marshal play submission", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	respBody, err := c.doRequestWithCookies(ctx, http.MethodPost, c.baseURL+"/geekplay.php", payload, headers, session.Cookies)
	if err != nil {
		return 0, err
	}

	var submitResp bggSubmitResponse
	if err := json.Unmarshal(respBody, &submitResp); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrMalformedResponse, err.Error())
	}

	if submitResp.Error != "" {
		return 0, fmt.Errorf("%w: %s", ErrPermanentClient, submitResp.Error)
	}

	playID, err := strconv.ParseInt(submitResp.PlayID, 10, 64)
	if err != nil || playID <= 0 {
		return 0, fmt.Errorf("%w: invalid play id %q", ErrMalformedResponse, submitResp.PlayID)
	}

	log.Info("Submitted play to BGG", "bggPlayID", playID, "objectID", submission.ObjectID)
	return playID, nil
}

func (c *BGGClient) doRequest(
	ctx context.Context,
	method, url string,
	payload []byte,
	headers http.Header,
) ([]byte, error) {
	return c.doRequestWithCookies(ctx, method, url, payload, headers, nil)
}

// doRequestWithCookies runs one logical request through the rate gate and
// the retry state machine: fixed delay for "still processing" responses,
// exponential backoff capped at backoffCap for transient failures, immediate
// failure for permanent ones.
func (c *BGGClient) doRequestWithCookies(
	ctx context.Context,
	method, url string,
	payload []byte,
	headers http.Header,
	cookies []*http.Cookie,
) ([]byte, error) {
	log := c.log.Function("doRequest")

	var lastErr error

	for attempt := 0; attempt < c.maxRetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleepForRetry(ctx, lastErr, attempt); err != nil {
				return nil, err
			}
		}

		if err := c.gate.Wait(ctx); err != nil {
			return nil, err
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, log.Err("failed to create request", err, "url", url)
		}
		req.Header.Set("User-Agent", bggUserAgent)
		for key, values := range headers {
			for _, value := range values {
				req.Header.Set(key, value)
			}
		}
		for _, cookie := range cookies {
			req.AddCookie(cookie)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %s", ErrTransientNetwork, err.Error())
			log.Warn("Request failed, will retry", "url", url, "attempt", attempt+1, "error", err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Warn("Failed to close response body", "error", closeErr)
		}

		switch {
		case resp.StatusCode == http.StatusAccepted:
			// BGG queued the request and wants us to poll again
			lastErr = errStillProcessing
			log.Debug("BGG still processing, will re-poll", "url", url, "attempt", attempt+1)
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: status 429", ErrRateLimited)
			log.Warn("BGG rate limited the request", "url", url, "attempt", attempt+1)
			continue

		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w: status %d", ErrTransientNetwork, resp.StatusCode)
			log.Warn("BGG server error, will retry", "url", url, "status", resp.StatusCode, "attempt", attempt+1)
			continue

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: status %d", ErrAuthenticationFailed, resp.StatusCode)

		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("%w: status %d", ErrPermanentClient, resp.StatusCode)
		}

		if readErr != nil {
			lastErr = fmt.Errorf("%w: %s", ErrTransientNetwork, readErr.Error())
			continue
		}

		return body, nil
	}

	return nil, fmt.Errorf("%w: after %d attempts: %w", ErrRetryExhausted, c.maxRetryAttempts, lastErr)
}

// sleepForRetry waits the appropriate delay before the next attempt: a fixed
// delay when BGG is still processing, exponential backoff otherwise
func (c *BGGClient) sleepForRetry(ctx context.Context, lastErr error, attempt int) error {
	delay := c.processingRetryDelay
	if lastErr == nil || !isProcessingRetry(lastErr) {
		delay = backoffBase << (attempt - 1)
		if delay > c.backoffCap {
			delay = c.backoffCap
		}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isProcessingRetry(err error) bool {
	return errors.Is(err, errStillProcessing)
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func joinIDs(ids []int64) string {
	var buf bytes.Buffer
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.FormatInt(id, 10))
	}
	return buf.String()
}
