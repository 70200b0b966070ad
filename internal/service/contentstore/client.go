// Package contentstore provides the Content Store adapters: an HTTP client
// and an in-process counter fed by the engagement event stream.
package contentstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
	pkghttp "PulsePrice/pkg/http"
)

type countsResponse struct {
	TokenID string           `json:"tokenId"`
	Counts  map[string]int64 `json:"counts"`
}

// Client reads engagement counts from the Content Store HTTP API.
type Client struct {
	http    *pkghttp.Client
	baseURL string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http:    pkghttp.NewClient(pkghttp.WithTimeout(timeout)),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// CountEngagement returns counts per kind for [since, until). Unknown kinds
// are ignored; a negative count fails the call.
func (c *Client) CountEngagement(ctx context.Context, tokenID string, since, until time.Time) (map[models.EngagementKind]int64, error) {
	var resp countsResponse
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    fmt.Sprintf("%s/tokens/%s/engagement", c.baseURL, url.PathEscape(tokenID)),
		QueryParams: map[string][]string{
			"since": {strconv.FormatInt(since.UnixMilli(), 10)},
			"until": {strconv.FormatInt(until.UnixMilli(), 10)},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("content store %s: %w", tokenID, err)
	}

	out := make(map[models.EngagementKind]int64, len(resp.Counts))
	for name, n := range resp.Counts {
		kind, ok := models.ParseEngagementKind(name)
		if !ok {
			continue
		}
		if n < 0 {
			return nil, fmt.Errorf("content store %s: negative %s count %d", tokenID, name, n)
		}
		out[kind] = n
	}
	return out, nil
}

var _ domrepo.ContentStore = (*Client)(nil)
