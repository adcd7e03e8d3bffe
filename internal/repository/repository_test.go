package repository

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinPWA/internal/domain/models"
	xhttp "FinPWA/pkg/http"
)

func TestBuildInsertSkipsRecordsWithoutID(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []*models.FetchRecord{
		{ID: "a", Time: at, Method: "GET", URL: "http://x/a", Class: models.ClassStatic, Strategy: models.StrategyCacheFirst, Source: models.SourceCache, Status: 200, Duration: 1500 * time.Microsecond, Bytes: 10, Version: "v2"},
		nil,
		{Method: "GET"},
		{ID: "b", Time: at, Class: models.ClassAPI},
	}

	q, args := buildInsert("fetch_journal", recs)
	assert.True(t, strings.HasPrefix(q, "INSERT INTO fetch_journal (id, ts, method"))
	assert.Equal(t, 2, strings.Count(q, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"))
	require.Len(t, args, 22)
	assert.Equal(t, "a", args[0])
	assert.Equal(t, "static", args[4])
	assert.Equal(t, uint16(200), args[7])
	assert.InDelta(t, 1.5, args[8], 1e-9)
	assert.Equal(t, "b", args[11])
}

func TestBuildInsertEmpty(t *testing.T) {
	q, args := buildInsert("fetch_journal", []*models.FetchRecord{nil})
	assert.Empty(t, q)
	assert.Nil(t, args)
}

func TestBuildQuery(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	q, args := buildQuery("fetch_journal", models.JournalQuery{From: from, To: to, Limit: 50})
	assert.NotContains(t, q, "class = ?")
	assert.True(t, strings.HasSuffix(q, "ORDER BY ts DESC LIMIT ?"))
	assert.Equal(t, []interface{}{from, to, 50}, args)

	q, args = buildQuery("fetch_journal", models.JournalQuery{From: from, To: to, Class: models.ClassAPI, Limit: 5})
	assert.Contains(t, q, "AND class = ?")
	assert.Equal(t, []interface{}{from, to, "api", 5}, args)
}

func TestClickHouseJournalSchemaTTL(t *testing.T) {
	s := NewClickHouseJournal(nil, "fetch_journal", 30*24*time.Hour)
	assert.Contains(t, s.schema(), "INTERVAL 30 DAY")
	assert.NotContains(t, NewClickHouseJournal(nil, "fetch_journal", 0).schema(), "TTL")
}

func TestUpstreamNetworkRewritesOrigin(t *testing.T) {
	var gotPath, gotQuery, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "text/css")
		_, _ = io.WriteString(w, "body{}")
	}))
	defer srv.Close()

	origin, _ := url.Parse("https://app.example.com")
	upstream, _ := url.Parse(srv.URL + "/site/")
	n := NewUpstreamNetwork(xhttp.NewClient(), origin, upstream)

	u, _ := url.Parse("https://app.example.com/static/main.css?v=3")
	resp, err := n.Fetch(context.Background(), &models.Request{
		Method: http.MethodPost,
		URL:    u,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte("hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, models.SourceNetwork, resp.Source)
	assert.Equal(t, "body{}", string(resp.Body))
	assert.Equal(t, "/site/static/main.css", gotPath)
	assert.Equal(t, "v=3", gotQuery)
	assert.Equal(t, "hi", gotBody)
}

func TestUpstreamNetworkKeepsCrossOrigin(t *testing.T) {
	origin, _ := url.Parse("https://app.example.com")
	upstream, _ := url.Parse("http://127.0.0.1:3000")
	n := NewUpstreamNetwork(xhttp.NewClient(), origin, upstream)

	u, _ := url.Parse("https://fonts.gstatic.com/s/inter.woff2")
	assert.Equal(t, "https://fonts.gstatic.com/s/inter.woff2", n.target(u))

	u, _ = url.Parse("https://app.example.com/index.html")
	assert.Equal(t, "http://127.0.0.1:3000/index.html", n.target(u))
}

func TestUpstreamNetworkDefaultPortIsOrigin(t *testing.T) {
	origin, _ := url.Parse("http://app.example.com")
	upstream, _ := url.Parse("http://127.0.0.1:3000/base")
	n := NewUpstreamNetwork(xhttp.NewClient(), origin, upstream)

	u, _ := url.Parse("http://APP.example.com:80/x?q=1")
	assert.Equal(t, "http://127.0.0.1:3000/base/x?q=1", n.target(u))

	u, _ = url.Parse("http://app.example.com:8080/x")
	assert.Equal(t, "http://app.example.com:8080/x", n.target(u))
}
