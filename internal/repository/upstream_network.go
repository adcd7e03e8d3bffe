package repository

import (
	"context"
	"net/url"
	"strings"

	"FinPWA/internal/domain/models"
	"FinPWA/internal/domain/repository"
	"FinPWA/pkg/cache"
	xhttp "FinPWA/pkg/http"
)

// UpstreamNetwork fetches same-origin requests from the upstream server and
// every other request from its own host.
type UpstreamNetwork struct {
	client   *xhttp.Client
	origin   *url.URL
	upstream *url.URL
}

// NewUpstreamNetwork creates a network backed by client.
func NewUpstreamNetwork(client *xhttp.Client, origin, upstream *url.URL) *UpstreamNetwork {
	return &UpstreamNetwork{client: client, origin: origin, upstream: upstream}
}

var _ repository.Network = (*UpstreamNetwork)(nil)

func (n *UpstreamNetwork) Fetch(ctx context.Context, req *models.Request) (*models.Response, error) {
	header := req.Header.Clone()
	if header != nil {
		header.Del("Host")
	}

	resp, err := n.client.Fetch(ctx, &xhttp.RequestOptions{
		Method: req.Method,
		URL:    n.target(req.URL),
		Header: header,
		Body:   req.Body,
	})
	if err != nil {
		return nil, err
	}

	return &models.Response{
		Status: resp.Status,
		Header: resp.Header,
		Body:   resp.Body,
		Source: models.SourceNetwork,
	}, nil
}

// target rewrites an origin URL onto the upstream base, keeping path and query.
func (n *UpstreamNetwork) target(u *url.URL) string {
	if n.upstream == nil || !cache.SameOrigin(u, n.origin) {
		return u.String()
	}
	t := *u
	t.Scheme = n.upstream.Scheme
	t.Host = n.upstream.Host
	t.User = n.upstream.User
	if base := strings.TrimSuffix(n.upstream.Path, "/"); base != "" {
		t.Path = base + u.Path
		t.RawPath = ""
	}
	return t.String()
}
