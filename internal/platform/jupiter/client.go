// Package jupiter is the REST client for the Jupiter swap aggregator, the
// venue the bot buys and sells tokenized stocks on.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// Config configures a Client.
type Config struct {
	BaseURL    string // e.g. "https://lite-api.jup.ag/swap/v1"
	APIKey     string // optional, sent as x-api-key
	RatePerSec float64
	Retries    int
	Timeout    time.Duration
	RetryWait  time.Duration
}

// Client talks to the quote and swap endpoints. Every call waits on a shared
// rate limiter and transient failures are retried a fixed number of times.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retries    int
	retryWait  time.Duration
	logger     *slog.Logger
}

// NewClient creates a new Jupiter client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		retries:    cfg.Retries,
		retryWait:  cfg.RetryWait,
		logger:     logger.With(slog.String("component", "jupiter")),
	}
}

// Quote prices a swap. A missing route is reported as domain.ErrNoQuote.
func (c *Client) Quote(ctx context.Context, req domain.QuoteRequest) (domain.SwapQuote, error) {
	params := url.Values{}
	params.Set("inputMint", req.InputMint)
	params.Set("outputMint", req.OutputMint)
	params.Set("amount", strconv.FormatUint(req.Amount, 10))
	params.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	params.Set("restrictIntermediateTokens", "true")

	body, err := c.do(ctx, http.MethodGet, "/quote?"+params.Encode(), nil)
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("jupiter: quote: %w", err)
	}

	q, err := parseQuote(body)
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("jupiter: decode quote: %w", err)
	}
	if q.OutAmount == 0 {
		return domain.SwapQuote{}, fmt.Errorf("jupiter: quote: %w", domain.ErrNoQuote)
	}
	return q, nil
}

// parseQuote reads the typed fields out of a quote body and keeps the body
// verbatim in Raw.
func parseQuote(body []byte) (domain.SwapQuote, error) {
	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SwapQuote{}, err
	}
	inAmount, err := domain.ParseBaseUnits(resp.InAmount)
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("inAmount: %w", err)
	}
	outAmount, err := domain.ParseBaseUnits(resp.OutAmount)
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("outAmount: %w", err)
	}
	var minOut uint64
	if resp.OtherAmountThreshold != "" {
		if minOut, err = domain.ParseBaseUnits(resp.OtherAmountThreshold); err != nil {
			return domain.SwapQuote{}, fmt.Errorf("otherAmountThreshold: %w", err)
		}
	}
	var impact float64
	if resp.PriceImpactPct != "" {
		if impact, err = strconv.ParseFloat(resp.PriceImpactPct, 64); err != nil {
			return domain.SwapQuote{}, fmt.Errorf("priceImpactPct: %w", err)
		}
	}

	// Fees are only comparable when charged in the input mint.
	var fee uint64
	for _, step := range resp.RoutePlan {
		if step.SwapInfo.FeeMint != resp.InputMint || step.SwapInfo.FeeAmount == "" {
			continue
		}
		if n, err := domain.ParseBaseUnits(step.SwapInfo.FeeAmount); err == nil {
			fee += n
		}
	}

	raw := make(json.RawMessage, len(body))
	copy(raw, body)

	return domain.SwapQuote{
		InputMint:      resp.InputMint,
		OutputMint:     resp.OutputMint,
		InAmount:       inAmount,
		OutAmount:      outAmount,
		MinOutAmount:   minOut,
		PriceImpactPct: impact,
		FeeAmount:      fee,
		SlippageBps:    resp.SlippageBps,
		Raw:            raw,
	}, nil
}

// SwapTransaction requests a signable transaction for quote. The quote's raw
// payload is sent back exactly as received.
func (c *Client) SwapTransaction(ctx context.Context, quote domain.SwapQuote, userPublicKey string, opts domain.SwapOptions) (domain.SwapTransaction, error) {
	if len(quote.Raw) == 0 {
		return domain.SwapTransaction{}, errors.New("jupiter: swap: quote has no raw payload")
	}
	reqBody := swapRequest{
		QuoteResponse:           quote.Raw,
		UserPublicKey:           userPublicKey,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: opts.DynamicComputeUnitLimit,
	}
	if opts.PriorityLevel != "" {
		pf := &priorityFee{}
		pf.PriorityLevelWithMaxLamports.PriorityLevel = opts.PriorityLevel
		pf.PriorityLevelWithMaxLamports.MaxLamports = opts.MaxPriorityLamports
		reqBody.PrioritizationFeeLamports = pf
	}

	body, err := c.do(ctx, http.MethodPost, "/swap", reqBody)
	if err != nil {
		return domain.SwapTransaction{}, fmt.Errorf("jupiter: swap: %w", err)
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SwapTransaction{}, fmt.Errorf("jupiter: decode swap: %w", err)
	}
	if resp.SwapTransaction == "" {
		return domain.SwapTransaction{}, fmt.Errorf("jupiter: swap: %w", domain.ErrNoRoute)
	}
	return domain.SwapTransaction{
		Transaction:          resp.SwapTransaction,
		LastValidBlockHeight: resp.LastValidBlockHeight,
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// retryableError marks failures worth another attempt.
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// do sends the request, retrying transient failures up to c.retries attempts
// in total.
func (c *Client) do(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var payload []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = b
	}

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		body, err := c.doOnce(ctx, method, path, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var re retryableError
		if !errors.As(err, &re) || attempt == c.retries {
			break
		}
		c.logger.DebugContext(ctx, "retrying request",
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryWait * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retryableError{fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retryableError{fmt.Errorf("read response: %w", err)}
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return retryableError{fmt.Errorf("%w: %s", domain.ErrRateLimited, apiErr.Error)}
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, apiErr.Error)
	case statusCode == http.StatusBadRequest:
		// Jupiter answers 400 when no route exists for the pair or amount.
		return fmt.Errorf("%w: %s (%s)", domain.ErrNoQuote, apiErr.Error, apiErr.ErrorCode)
	case statusCode >= 500:
		return retryableError{fmt.Errorf("HTTP %d: %s", statusCode, apiErr.Error)}
	default:
		return fmt.Errorf("HTTP %d: %s (%s)", statusCode, apiErr.Error, apiErr.ErrorCode)
	}
}

// Compile-time interface check.
var _ domain.SwapGateway = (*Client)(nil)
