// Package dispatch performs the outbound AI completion call: provider
// resolution, the HTTP POST with a hard per-attempt timeout, and retry with
// capped exponential backoff.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/chatrelay/chatrelay/internal/obs"
	"github.com/chatrelay/chatrelay/internal/provider"
)

const (
	// DefaultMaxAttempts bounds the retry loop.
	DefaultMaxAttempts = 3

	// attemptTimeout hard-aborts a single in-flight vendor call.
	attemptTimeout = 30 * time.Second

	// snippetLen caps how much raw vendor body ends up in error messages.
	snippetLen = 200
)

// Result is the normalized outcome of a dispatch. Exactly one of Content or
// Err is meaningful, selected by Success.
type Result struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Err     string `json:"error,omitempty"`
}

// Dispatcher sends messages to the resolved AI provider.
type Dispatcher struct {
	client      *http.Client
	sink        *obs.Sink
	maxAttempts int
}

// NewDispatcher creates a dispatcher recording to sink. maxAttempts <= 0
// selects DefaultMaxAttempts.
func NewDispatcher(sink *obs.Sink, maxAttempts int) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Dispatcher{
		// Per-attempt deadlines come from the request context, not the
		// client, so a retry never inherits a spent timeout.
		client:      &http.Client{},
		sink:        sink,
		maxAttempts: maxAttempts,
	}
}

// Dispatch resolves the provider for cfg, calls it, and retries transient
// failures with exponential backoff (1s, 2s, 4s, capped at 5s). The first
// successful attempt returns immediately with the trimmed reply text. After
// exhausting all attempts the result carries a single aggregated error.
func (d *Dispatcher) Dispatch(ctx context.Context, message string, cfg provider.Config) Result {
	desc := provider.Resolve(cfg.Provider, cfg.Endpoint)

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = desc.BaseURL()
	}

	model := cfg.Model
	if model == "" {
		model = desc.DefaultModel()
	}

	start := time.Now()

	if endpoint == "" {
		// Only Azure descriptors have no default endpoint.
		errMsg := desc.Name() + " requires an explicit endpoint; set AI_API_URL"
		d.sink.RecordAICall(false, time.Since(start), desc.Name(), model, errMsg)
		return Result{Success: false, Err: errMsg}
	}

	bo := newBackOff()
	var lastErr error

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		attemptStart := time.Now()

		text, err := d.attempt(ctx, endpoint, desc, message, cfg)
		if err == nil {
			d.sink.RecordAICall(true, time.Since(start), desc.Name(), model, "")
			return Result{Success: true, Content: strings.TrimSpace(text)}
		}

		lastErr = err
		d.sink.Warn(obs.EventAICall,
			fmt.Sprintf("%s call failed (attempt %d/%d)", desc.Name(), attempt, d.maxAttempts),
			map[string]interface{}{
				"provider":    desc.Name(),
				"model":       model,
				"attempt":     attempt,
				"duration_ms": time.Since(attemptStart).Milliseconds(),
				"error":       err.Error(),
			})

		if attempt < d.maxAttempts {
			if err := sleep(ctx, bo.NextBackOff()); err != nil {
				lastErr = fmt.Errorf("%w (canceled while waiting to retry: %v)", lastErr, err)
				break
			}
		}
	}

	errMsg := fmt.Sprintf("%s failed after %d attempts: %v", desc.Name(), d.maxAttempts, lastErr)
	d.sink.RecordAICall(false, time.Since(start), desc.Name(), model, errMsg)
	return Result{Success: false, Err: errMsg}
}

// attempt performs one vendor call. Every returned error is retryable; the
// caller decides when to stop.
func (d *Dispatcher) attempt(ctx context.Context, endpoint string, desc provider.Descriptor, message string, cfg provider.Config) (string, error) {
	body, err := json.Marshal(desc.FormatRequest(message, cfg))
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	for k, v := range desc.Headers(cfg.Token) {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read the raw body regardless of status so failures keep a snippet
	// for diagnosis.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d %s: %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), snippet(raw))
	}

	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("decode response: %s", snippet(raw))
	}

	text, ok := desc.ParseResponse(data)
	if !ok {
		return "", errors.New("invalid response: no reply text")
	}
	return text, nil
}

// newBackOff builds the retry schedule: 1s, 2s, 4s, ... capped at 5s, with
// no jitter so the delay sequence is deterministic.
func newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func snippet(raw []byte) string {
	if len(raw) > snippetLen {
		return string(raw[:snippetLen])
	}
	return string(raw)
}
