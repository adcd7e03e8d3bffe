package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFetchBuffersResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "true", r.Header.Get("Service-Worker-Navigation-Preload"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"tag":"portfolio-sync"}`, string(body))
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	}))
	defer srv.Close()

	resp, err := NewClient().Fetch(context.Background(), &RequestOptions{
		Method: http.MethodPost,
		URL:    srv.URL + "/pot",
		Header: http.Header{"Service-Worker-Navigation-Preload": []string{"true"}},
		Body:   []byte(`{"tag":"portfolio-sync"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.Status)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "short and stout", string(resp.Body))
}

func TestClientFetchDoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
			return
		}
		_, _ = io.WriteString(w, "new")
	}))
	defer srv.Close()

	resp, err := NewClient().Fetch(context.Background(), &RequestOptions{URL: srv.URL + "/old"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, resp.Status)
	assert.Equal(t, "/new", resp.Header.Get("Location"))

	resp, err = NewClient(WithFollowRedirects(true)).Fetch(context.Background(), &RequestOptions{URL: srv.URL + "/old"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "new", string(resp.Body))
}

func TestClientFetchEnforcesBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer srv.Close()

	c := NewClient(WithMaxBodyBytes(16))
	_, err := c.Fetch(context.Background(), &RequestOptions{URL: srv.URL})
	assert.True(t, errors.Is(err, ErrBodyTooLarge))

	resp, err := NewClient(WithMaxBodyBytes(0)).Fetch(context.Background(), &RequestOptions{URL: srv.URL})
	require.NoError(t, err)
	assert.Len(t, resp.Body, 64)
}

func TestClientFetchTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient().Fetch(context.Background(), &RequestOptions{URL: url})
	assert.Error(t, err)
}
