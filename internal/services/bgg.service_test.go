package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tabletally/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBGGClient(baseURL string) *BGGClient {
	cfg := config.Config{
		BGGBaseURL:                 baseURL,
		SyncMaxIDsPerBatch:         20,
		SyncMaxRetryAttempts:       3,
		SyncProcessingRetrySeconds: 0,
		SyncBackoffCapSeconds:      0,
	}
	return NewBGGClient(cfg, NewBGGRateGate(0))
}

const thingsXML = `<?xml version="1.0" encoding="utf-8"?>
<items>
  <item type="boardgame" id="174430">
    <thumbnail>https://example.com/thumb.jpg</thumbnail>
    <image>https://example.com/image.jpg</image>
    <name type="primary" sortindex="1" value="Gloomhaven"/>
    <name type="alternate" sortindex="1" value="Homarguen"/>
    <yearpublished value="2017"/>
    <minplayers value="1"/>
    <maxplayers value="4"/>
    <playingtime value="120"/>
    <link type="boardgamedesigner" id="69802" value="Isaac Childres"/>
    <link type="boardgamepublisher" id="27425" value="Cephalofair Games"/>
    <statistics page="1">
      <ratings>
        <average value="8.6"/>
        <averageweight value="3.89"/>
      </ratings>
    </statistics>
  </item>
  <item type="boardgameexpansion" id="226868">
    <name type="primary" sortindex="1" value="Gloomhaven: Solo Scenarios"/>
    <yearpublished value="0"/>
  </item>
</items>`

func TestBGGClientFetchThings_ParsesCatalogEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "174430,226868", r.URL.Query().Get("id"))
		assert.Equal(t, "1", r.URL.Query().Get("stats"))
		_, _ = w.Write([]byte(thingsXML))
	}))
	defer server.Close()

	client := newTestBGGClient(server.URL)
	things, err := client.FetchThings(context.Background(), []int64{174430, 226868})
	require.NoError(t, err)
	require.Len(t, things, 2)

	game := things[0]
	assert.Equal(t, int64(174430), game.ID)
	assert.Equal(t, "Gloomhaven", game.PrimaryName())
	assert.Equal(t, "Isaac Childres", game.LinkValue("boardgamedesigner"))
	assert.Equal(t, "Cephalofair Games", game.LinkValue("boardgamepublisher"))
	assert.False(t, game.IsExpansion())
	require.NotNil(t, game.YearPub.Ptr())
	assert.Equal(t, 2017, *game.YearPub.Ptr())
	require.NotNil(t, game.Statistics.Ratings.AverageWeight.Decimal())
	assert.Equal(t, "3.89", game.Statistics.Ratings.AverageWeight.Decimal().String())

	expansion := things[1]
	assert.True(t, expansion.IsExpansion())
	assert.Nil(t, expansion.YearPub.Ptr())
	assert.Nil(t, expansion.Statistics.Ratings.Average.Decimal())
}

func TestBGGClientFetchThings_SplitsOversizedBatches(t *testing.T) {
	var batches []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		batches = append(batches, r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`<items></items>`))
	}))
	defer server.Close()

	client := newTestBGGClient(server.URL)
	client.maxIDsPerBatch = 2

	_, err := client.FetchThings(context.Background(), []int64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"1,2", "3,4", "5"}, batches)
}

func TestBGGClientFetchThings_DeduplicatesIDs(t *testing.T) {
	var requested string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Query().Get("id")
		_, _ = w.Write([]byte(`<items></items>`))
	}))
	defer server.Close()

	client := newTestBGGClient(server.URL)
	_, err := client.FetchThings(context.Background(), []int64{7, 7, 0, -1, 9})
	require.NoError(t, err)
	assert.Equal(t, "7,9", requested)
}

func TestBGGClientRetry_PollsAfterAccepted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		_, _ = w.Write([]byte(`<items></items>`))
	}))
	defer server.Close()

	client := newTestBGGClient(server.URL)
	_, err := client.FetchThings(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBGGClientRetry_RecoversFromRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`<items></items>`))
	}))
	defer server.Close()

	client := newTestBGGClient(server.URL)
	_, err := client.FetchThings(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBGGClientRetry_AuthFailureIsTerminal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestBGGClient(server.URL)
	_, err := client.FetchThings(context.Background(), []int64{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.True(t, IsTerminalError(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestBGGClientRetry_ExhaustsOnPersistentServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestBGGClient(server.URL)
	_, err := client.FetchThings(context.Background(), []int64{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.ErrorIs(t, err, ErrTransientNetwork)
	assert.Equal(t, int32(3), calls.Load())
}

const playsPageTemplate = `<?xml version="1.0" encoding="utf-8"?>
<plays username="tester" userid="123" total="3" page="%s">%s</plays>`

const playXML = `
<play id="%d" date="2026-03-14" quantity="1" length="95" location="Home">
  <item name="Gloomhaven" objecttype="thing" objectid="174430"/>
  <comments>Close one</comments>
  <players>
    <player username="tester" userid="123" name="Me" score="42" new="0" win="1" startposition="1"/>
    <player username="" userid="0" name="Sam" score="38" new="1" win="0" startposition="2"/>
  </players>
</play>`

func TestBGGClientFetchPlays_FollowsPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tester", r.URL.Query().Get("username"))
		assert.Equal(t, "2026-03-01", r.URL.Query().Get("mindate"))

		var body string
		if r.URL.Query().Get("page") == "1" {
			body = fmt.Sprintf(playsPageTemplate, "1", fmt.Sprintf(playXML, 101)+fmt.Sprintf(playXML, 102))
		} else {
			body = fmt.Sprintf(playsPageTemplate, "2", fmt.Sprintf(playXML, 103))
		}
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	minDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	maxDate := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	client := newTestBGGClient(server.URL)
	plays, err := client.FetchPlays(context.Background(), "tester", minDate, maxDate)
	require.NoError(t, err)
	require.Len(t, plays, 3)

	first := plays[0]
	assert.Equal(t, int64(101), first.ID)
	assert.Equal(t, "2026-03-14", first.Date)
	assert.Equal(t, int64(174430), first.Item.ObjectID)
	assert.Equal(t, 95, first.Length)
	require.Len(t, first.Players, 2)
	assert.Equal(t, "tester", first.Players[0].Username)
	assert.Equal(t, 1, first.Players[0].Win)
	assert.Equal(t, "Sam", first.Players[1].Name)
	assert.Empty(t, first.Players[1].Username)
}

func TestBGGClientFetchPlays_EmptyUsernameIsTerminal(t *testing.T) {
	client := newTestBGGClient("http://unused")
	_, err := client.FetchPlays(context.Background(), "", time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrPermanentClient)
}

func TestBGGClientLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/login/api/v1", r.URL.Path)
		http.SetCookie(w, &http.Cookie{Name: "bggsession", Value: "abc123"})
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestBGGClient(server.URL)
	session, err := client.Login(context.Background(), "tester", "hunter2")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "tester", session.Username)
	require.Len(t, session.Cookies, 1)
	assert.Equal(t, "bggsession", session.Cookies[0].Name)
}

func TestBGGClientLogin_RejectedCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestBGGClient(server.URL)
	_, err := client.Login(context.Background(), "tester", "wrong")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestBGGClientLogin_NoCookiesMeansNoSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestBGGClient(server.URL)
	_, err := client.Login(context.Background(), "tester", "hunter2")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestBGGClientSubmitPlay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geekplay.php", r.URL.Path)
		cookie, err := r.Cookie("bggsession")
		require.NoError(t, err)
		assert.Equal(t, "abc123", cookie.Value)
		_, _ = w.Write([]byte(`{"playid":"9912345"}`))
	}))
	defer server.Close()

	session := &BGGSession{
		Username: "tester",
		Cookies:  []*http.Cookie{{Name: "bggsession", Value: "abc123"}},
	}

	client := newTestBGGClient(server.URL)
	playID, err := client.SubmitPlay(context.Background(), session, PlaySubmission{
		ObjectID: 174430,
		Date:     "2026-03-14",
		Players: []SubmissionPlayer{
			{Username: "tester", Score: "42", Win: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9912345), playID)
}

func TestBGGClientSubmitPlay_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"playid":"","error":"Invalid play date"}`))
	}))
	defer server.Close()

	session := &BGGSession{
		Username: "tester",
		Cookies:  []*http.Cookie{{Name: "bggsession", Value: "abc123"}},
	}

	client := newTestBGGClient(server.URL)
	_, err := client.SubmitPlay(context.Background(), session, PlaySubmission{ObjectID: 174430})
	assert.ErrorIs(t, err, ErrPermanentClient)
}

func TestBGGClientSubmitPlay_NoSession(t *testing.T) {
	client := newTestBGGClient("http://unused")
	_, err := client.SubmitPlay(context.Background(), nil, PlaySubmission{ObjectID: 1})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}
