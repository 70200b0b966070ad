// Package attestation reads externally verified popularity metrics for a
// token from the Attestation Service and normalises them to a score.
package attestation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
	svccache "PulsePrice/internal/service/cache"
	pkghttp "PulsePrice/pkg/http"
)

const (
	processPath    = "/process_data"
	apiKeyHeader   = "X-API-Key"
	ratingScale    = 1000 // 0..10 rating → 0..10000 score
	defaultTTL     = 5 * time.Minute
	cacheKeyPrefix = "attestation:"
)

var ErrUnsigned = errors.New("attestation response is not signed")

// Metrics is the attested payload.
type Metrics struct {
	Title                  string  `json:"title"`
	ExternalAverageRating  float64 `json:"external_average_rating"`
	ExternalPopularityRank int64   `json:"external_popularity_rank"`
	ExternalMemberCount    int64   `json:"external_member_count"`
	QueriedName            string  `json:"queried_name"`
}

type intentMessage struct {
	Intent      int     `json:"intent"`
	TimestampMs int64   `json:"timestamp_ms"`
	Data        Metrics `json:"data"`
}

type processResponse struct {
	Response  intentMessage `json:"response"`
	Signature string        `json:"signature"`
}

type processRequest struct {
	Payload struct {
		Name string `json:"name"`
	} `json:"payload"`
}

// Client implements domain AttestationService over HTTP.
type Client struct {
	http    *pkghttp.Client
	baseURL string
	apiKey  string
	cache   svccache.BytesCache
	ttl     time.Duration
}

// Option configures Client.
type Option func(*Client)

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithCache caches scores for ttl. A nil cache disables caching.
func WithCache(cache svccache.BytesCache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = pkghttp.NewClient(pkghttp.WithTimeout(d))
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    pkghttp.NewClient(pkghttp.WithTimeout(5 * time.Second)),
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   svccache.NewTTLCache(),
		ttl:     defaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExternalScore returns the normalised score of tokenID in [0, MaxExternalScore].
func (c *Client) ExternalScore(ctx context.Context, tokenID string) (int64, bool, error) {
	key := cacheKeyPrefix + strings.ToLower(tokenID)
	if c.cache != nil {
		if b, ok, err := c.cache.GetBytes(key); err == nil && ok {
			if v, perr := strconv.ParseInt(string(b), 10, 64); perr == nil {
				return v, true, nil
			}
		}
	}

	m, err := c.Fetch(ctx, tokenID)
	if err != nil {
		return 0, false, err
	}
	score, err := Normalize(m.ExternalAverageRating)
	if err != nil {
		return 0, false, err
	}

	if c.cache != nil {
		_ = c.cache.SetBytes(key, []byte(strconv.FormatInt(score, 10)), c.ttl)
	}
	return score, true, nil
}

// Fetch calls the service and returns the attested metrics.
func (c *Client) Fetch(ctx context.Context, tokenID string) (Metrics, error) {
	var req processRequest
	req.Payload.Name = tokenID

	headers := map[string]string{}
	if c.apiKey != "" {
		headers[apiKeyHeader] = c.apiKey
	}

	var resp processResponse
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method:  pkghttp.MethodPost,
		URL:     c.baseURL + processPath,
		Headers: headers,
		Body:    req,
	}, &resp)
	if err != nil {
		return Metrics{}, fmt.Errorf("attestation %s: %w", tokenID, err)
	}
	if strings.TrimSpace(resp.Signature) == "" {
		return Metrics{}, fmt.Errorf("attestation %s: %w", tokenID, ErrUnsigned)
	}
	return resp.Response.Data, nil
}

// Normalize maps a 0..10 average rating onto 0..MaxExternalScore.
func Normalize(rating float64) (int64, error) {
	if math.IsNaN(rating) || math.IsInf(rating, 0) {
		return 0, fmt.Errorf("%w: rating is not finite", models.ErrComputationFailure)
	}
	v := math.Round(rating * ratingScale)
	return int64(math.Max(0, math.Min(v, models.MaxExternalScore))), nil
}

// Disabled is the AttestationService used when no service is configured.
type Disabled struct{}

func (Disabled) ExternalScore(context.Context, string) (int64, bool, error) {
	return 0, false, nil
}

var (
	_ domrepo.AttestationService = (*Client)(nil)
	_ domrepo.AttestationService = Disabled{}
)
