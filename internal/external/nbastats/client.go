// Package nbastats pulls raw JSON from the public NBA stats CDN. The
// feed format is known only here: fetchers hand back opaque payloads for
// the bronze layer, and the Parse functions turn those payloads into
// typed entities for conformance.
package nbastats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/courtdata/fastbreak/internal/contracts"
	"github.com/courtdata/fastbreak/pkg/config"
	"github.com/courtdata/fastbreak/pkg/httputil"
	"github.com/courtdata/fastbreak/pkg/logger"
	"github.com/courtdata/fastbreak/pkg/metrics"
)

// Client handles communication with the stats feed. All feed calls go
// through this client: it rate-limits, classifies failures into
// FetchError kinds, and trips a circuit breaker on availability
// failures. Retry policy belongs to callers.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	cfg        config.FeedConfig
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a feed client on top of httpClient. Use
// NewHTTPClient for a transport configured the way the feed expects.
func NewClient(cfg config.FeedConfig, httpClient *httputil.Client, log *logger.Logger) *Client {
	c := &Client{
		httpClient: httpClient,
		logger:     log,
		cfg:        cfg,
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "nbastats",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		IsSuccessful: func(err error) bool {
			// A 404 or an unparseable body is an answer, not an
			// outage; only availability failures count.
			if err == nil {
				return true
			}
			return !IsRateLimited(err) && !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Feed circuit breaker state changed")
		},
	})

	return c
}

// NewHTTPClient builds the transport the feed client expects: bounded
// timeout, transport retries off, token-bucket rate limiting, stable
// user agent.
func NewHTTPClient(cfg *config.Config, log *logger.Logger) *httputil.Client {
	return httputil.NewWithTimeout(cfg, log, cfg.Feed.Timeout).
		DisableRetry().
		WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.Feed.RequestsPerSecond), cfg.Feed.Burst)).
		WithUserAgent(cfg.Feed.UserAgent)
}

// BreakerState reports the circuit breaker state for status endpoints.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

func (c *Client) scoreboardURL(date contracts.Date) string {
	compact := strings.ReplaceAll(string(date), "-", "")
	return fmt.Sprintf("%s/liveData/scoreboard/scoreboard_%s.json", c.cfg.BaseURL, compact)
}

func (c *Client) boxScoreURL(gameID string) string {
	return fmt.Sprintf("%s/liveData/boxscore/boxscore_%s.json", c.cfg.BaseURL, gameID)
}

func (c *Client) rosterURL(teamID string) string {
	return fmt.Sprintf("%s/staticData/rosters/team_%s.json", c.cfg.BaseURL, teamID)
}

func (c *Client) scheduleURL() string {
	return fmt.Sprintf("%s/staticData/scheduleLeagueV2.json", c.cfg.BaseURL)
}

// fetch runs one GET through the breaker and classifies the outcome.
func (c *Client) fetch(ctx context.Context, resource contracts.RawResource, sourceID, url string) (json.RawMessage, error) {
	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.doFetch(ctx, resource, sourceID, url)
	})
	metrics.ObserveFetchLatency(float64(time.Since(start).Milliseconds()))

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &FetchError{
				Kind:     KindTransient,
				Resource: resource,
				SourceID: sourceID,
				Err:      err,
			}
		}
		metrics.RecordFetch(string(resource), fetchOutcome(err))
		return nil, err
	}

	metrics.RecordFetch(string(resource), "ok")
	return json.RawMessage(body), nil
}

func (c *Client) doFetch(ctx context.Context, resource contracts.RawResource, sourceID, url string) ([]byte, error) {
	resp, err := c.httpClient.Get(ctx, url)
	if err != nil {
		return nil, &FetchError{
			Kind:     KindTransient,
			Resource: resource,
			SourceID: sourceID,
			Err:      err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{
			Kind:     kindForStatus(resp.StatusCode),
			Resource: resource,
			SourceID: sourceID,
			Status:   resp.StatusCode,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{
			Kind:     KindTransient,
			Resource: resource,
			SourceID: sourceID,
			Err:      fmt.Errorf("read response body: %w", err),
		}
	}

	if !json.Valid(body) {
		return nil, &FetchError{
			Kind:     KindPermanentlyInvalid,
			Resource: resource,
			SourceID: sourceID,
			Status:   resp.StatusCode,
			Body:     body,
			Err:      errors.New("response is not valid JSON"),
		}
	}

	return body, nil
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindTransient
	default:
		// Remaining 4xx will not improve on refetch.
		return KindPermanentlyInvalid
	}
}

func fetchOutcome(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind.String()
	}
	return "error"
}
