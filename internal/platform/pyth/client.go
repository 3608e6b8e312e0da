// Package pyth reads reference prices from the Pyth Hermes price service.
package pyth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// Config configures a Client.
type Config struct {
	BaseURL      string // e.g. "https://hermes.pyth.network"
	Timeout      time.Duration
	MaxStaleness time.Duration // zero disables the check
	Retries      int
	RatePerSec   float64
	RetryWait    time.Duration
}

// Client implements domain.PriceSource against Hermes' latest-update
// endpoint.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
	maxStaleness time.Duration
	retries      int
	retryWait    time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewClient creates a Hermes client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 250 * time.Millisecond
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(limit, 1),
		maxStaleness: cfg.MaxStaleness,
		retries:      cfg.Retries,
		retryWait:    cfg.RetryWait,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "pyth")),
	}
}

type latestResponse struct {
	Parsed []parsedUpdate `json:"parsed"`
}

type parsedUpdate struct {
	ID    string    `json:"id"`
	Price priceInfo `json:"price"`
}

type priceInfo struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

func (c *Client) Name() string { return "pyth" }

// Price fetches the latest aggregate price for asset.FeedID. The returned
// confidence is in the same units as the price.
func (c *Client) Price(ctx context.Context, asset domain.AssetConfig) (domain.PriceQuote, error) {
	feed := normalizeFeedID(asset.FeedID)
	if feed == "" {
		return domain.PriceQuote{}, fmt.Errorf("pyth: %s: no feed id configured", asset.Symbol)
	}

	var (
		body []byte
		err  error
	)
	for attempt := 1; attempt <= c.retries; attempt++ {
		body, err = c.fetch(ctx, feed)
		if err == nil || !isTransient(err) || attempt == c.retries {
			break
		}
		c.logger.DebugContext(ctx, "retrying price fetch",
			slog.String("symbol", asset.Symbol),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return domain.PriceQuote{}, ctx.Err()
		case <-time.After(c.retryWait):
		}
	}
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("pyth: %s: %w", asset.Symbol, err)
	}

	var resp latestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("pyth: %s: decode: %w", asset.Symbol, err)
	}

	for _, u := range resp.Parsed {
		if normalizeFeedID(u.ID) != feed {
			continue
		}
		return c.toQuote(asset, u.Price)
	}
	return domain.PriceQuote{}, fmt.Errorf("pyth: %s: feed %s: %w", asset.Symbol, feed, domain.ErrNotFound)
}

func (c *Client) toQuote(asset domain.AssetConfig, p priceInfo) (domain.PriceQuote, error) {
	price, err := scale(p.Price, p.Expo)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("pyth: %s: price: %w", asset.Symbol, err)
	}
	if price <= 0 {
		return domain.PriceQuote{}, fmt.Errorf("pyth: %s: non-positive price %v", asset.Symbol, price)
	}

	published := time.Unix(p.PublishTime, 0)
	if c.maxStaleness > 0 && c.now().Sub(published) > c.maxStaleness {
		return domain.PriceQuote{}, fmt.Errorf("pyth: %s: published %s: %w",
			asset.Symbol, published.UTC().Format(time.RFC3339), domain.ErrStalePrice)
	}

	q := domain.PriceQuote{Source: c.Name(), Price: price, Timestamp: published}
	if p.Conf != "" {
		if conf, err := scale(p.Conf, p.Expo); err == nil {
			q.Confidence = &conf
		}
	}
	return q, nil
}

func (c *Client) fetch(ctx context.Context, feed string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + "/v2/updates/price/latest?" + url.Values{"ids[]": {feed}, "parsed": {"true"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transientError{fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientError{fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, strings.TrimSpace(string(body)))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, transientError{domain.ErrRateLimited}
	case resp.StatusCode >= 500:
		return nil, transientError{fmt.Errorf("HTTP %d", resp.StatusCode)}
	default:
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var t transientError
	return errors.As(err, &t)
}

// scale turns a Hermes integer mantissa and exponent into a float.
func scale(mantissa string, expo int32) (float64, error) {
	if _, err := strconv.ParseInt(mantissa, 10, 64); err != nil {
		return 0, err
	}
	d, err := decimal.NewFromString(mantissa)
	if err != nil {
		return 0, err
	}
	f, _ := d.Shift(expo).Float64()
	return f, nil
}

// normalizeFeedID lower-cases the id and strips any 0x prefix; Hermes
// returns ids without one.
func normalizeFeedID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.TrimPrefix(id, "0x")
}

var _ domain.PriceSource = (*Client)(nil)
