// Package anki talks to the AnkiConnect add-on over its JSON HTTP API.
//
// Every call is a POST of {"action", "version", "params"} to the add-on's
// base URL. The reply always carries exactly two keys, "result" and
// "error". A transport failure becomes ErrConnection; a non-null "error"
// becomes a *RemoteError.
//
// Calls go through a rate limiter and a circuit breaker. The breaker opens
// after consecutive transport failures so parallel workers stop hammering
// a closed Anki; logical rejections never count against it.
package anki

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	// APIVersion is the AnkiConnect API version requested on every call.
	APIVersion = 6

	// DefaultURL is where AnkiConnect listens out of the box.
	DefaultURL = "http://localhost:8765"

	// DefaultTimeout bounds every request.
	DefaultTimeout = 30 * time.Second

	maxReplySize = 256 << 20
)

// Config configures a Client.
type Config struct {
	URL       string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 for unlimited
	APIKey    string

	// BreakerThreshold is the number of consecutive transport failures
	// that opens the circuit. Zero means 5.
	BreakerThreshold uint32
	// BreakerCooldown is how long the circuit stays open. Zero means 30s.
	BreakerCooldown time.Duration

	Logger zerolog.Logger
}

// Client is an AnkiConnect client. It is safe for concurrent use.
type Client struct {
	url     string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[json.RawMessage]
	logger  zerolog.Logger
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = max(1, int(cfg.RateLimit))
	}

	logger := cfg.Logger.With().Str("component", "anki").Logger()
	threshold := cfg.BreakerThreshold

	breaker := gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        "ankiconnect",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsRemote(err) || errors.Is(err, ErrProtocol)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Client{
		url:     strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
		logger:  logger,
	}
}

// URL returns the AnkiConnect base URL.
func (c *Client) URL() string {
	return c.url
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
	Key     string `json:"key,omitempty"`
}

// invoke performs one action and decodes its result into out (which may
// be nil). On a logical error the raw result is still returned, since some
// actions report partial success alongside an error.
func (c *Client) invoke(ctx context.Context, action string, params, out any) (json.RawMessage, error) {
	result, err := c.breaker.Execute(func() (json.RawMessage, error) {
		return c.roundTrip(ctx, action, params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, action, err)
	}
	if err != nil {
		return result, err
	}
	if out != nil && len(result) > 0 && string(result) != "null" {
		if err := json.Unmarshal(result, out); err != nil {
			return result, fmt.Errorf("%w: failed to decode %s result: %v", ErrProtocol, action, err)
		}
	}
	return result, nil
}

// roundTrip returns the raw result. When the reply carries an error the
// raw result is returned together with a *RemoteError.
func (c *Client) roundTrip(ctx context.Context, action string, params any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnection, action, err)
	}

	body, err := json.Marshal(request{Action: action, Version: APIVersion, Params: params, Key: c.apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %v", ErrConnection, c.url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s reply: %v", ErrConnection, action, err)
	}
	c.logger.Debug().Str("action", action).Int("status", resp.StatusCode).Int("bytes", len(data)).
		Dur("took", time.Since(start)).Msg("request")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned HTTP %d: %s", ErrConnection, action, resp.StatusCode, truncate(data, 200))
	}

	return decodeReply(action, data)
}

// decodeReply validates the two-key envelope.
func decodeReply(action string, data []byte) (json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProtocol, action, err)
	}
	if len(envelope) != 2 {
		return nil, fmt.Errorf("%w: %s: response has an unexpected number of fields", ErrProtocol, action)
	}
	result, okResult := envelope["result"]
	rawErr, okErr := envelope["error"]
	if !okResult || !okErr {
		return nil, fmt.Errorf("%w: %s: response is missing required fields", ErrProtocol, action)
	}
	if msg := errorMessage(rawErr); msg != "" {
		return result, &RemoteError{Action: action, Message: msg}
	}
	return result, nil
}

// errorMessage renders a reply's error value, or "" when it is null.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
