// Package discord provides a resilient client for the chat platform's REST
// API, plus a minimal gateway session. The REST surface is the bot's only
// write path to remote sidecar-bearing objects, so every call here is a
// potential suspension point in the read-modify-write cycles above it.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	perr "warden/internal/platform/errors"
	"warden/internal/platform/logger"
)

const (
	baseURLDefault   = "https://discord.com/api/v10"
	defaultTimeout   = 10 * time.Second
	defaultUA        = "warden-bot"
	defaultMaxRetry  = 4
	defaultRetryBase = 400 * time.Millisecond
)

// Options configures the Client
type Options struct {
	BaseURL   string
	UserAgent string
	Token     string
	Timeout   time.Duration

	// Retry config for transient and rate limited responses
	MaxRetries int
	RetryBase  time.Duration
}

// Client is a minimal platform REST client with retry and rate limit handling
type Client struct {
	http  *http.Client
	opts  Options
	log   logger.Logger
	now   func() time.Time
	sleep func(time.Duration)
}

// NewClient creates a new Client with sane defaults
func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	return &Client{
		http:  &http.Client{Timeout: o.Timeout},
		opts:  o,
		log:   *logger.Named("discord"),
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// do issues a request with auth headers, retries, and rate limit handling.
// body is JSON encoded when non-nil; out is JSON decoded when non-nil and the
// response has content. reason, when set, is sent as the audit log reason.
func (c *Client) do(ctx context.Context, method, path string, body, out any, reason string) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeUnknown, "discord encode request")
		}
	}
	return c.doRaw(ctx, method, path, func() (io.Reader, string) {
		if payload == nil {
			return nil, ""
		}
		return bytes.NewReader(payload), "application/json"
	}, out, reason)
}

// doMultipart posts payload JSON plus one file attachment
func (c *Client) doMultipart(ctx context.Context, method, path string, payload any, filename string, file []byte, out any) error {
	pj, err := json.Marshal(payload)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnknown, "discord encode request")
	}
	return c.doRaw(ctx, method, path, func() (io.Reader, string) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		pw, _ := w.CreateFormField("payload_json")
		_, _ = pw.Write(pj)
		fw, _ := w.CreateFormFile("files[0]", filename)
		_, _ = fw.Write(file)
		_ = w.Close()
		return &buf, w.FormDataContentType()
	}, out, "")
}

func (c *Client) doRaw(ctx context.Context, method, path string, mkBody func() (io.Reader, string), out any, reason string) error {
	url := c.opts.BaseURL + path
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var rd io.Reader
		var ct string
		if mkBody != nil {
			rd, ct = mkBody()
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeUnknown, "discord new request")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Authorization", "Bot "+c.opts.Token)
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		if reason != "" {
			req.Header.Set("X-Audit-Log-Reason", reason)
		}

		start := c.now()
		resp, err := c.http.Do(req)
		lat := c.now().Sub(start)

		if err != nil {
			if !c.shouldRetry(attempts) {
				return perr.Wrap(err, perr.ErrorCodeUnavailable, "discord request failed")
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("retry_in", back).Int("attempt", attempts).Msg("discord transport error retrying")
			c.sleep(back)
			attempts++
			continue
		}

		rem, resetAfter, retryAfter := parseRateHeaders(resp.Header)
		c.log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Int("attempt", attempts).
			Dur("latency", lat).
			Int("rate_remaining", rem).
			Msg("discord http response")

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			defer resp.Body.Close()
			if out == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return perr.Wrap(err, perr.ErrorCodeUnknown, "discord decode response")
			}
			return nil

		case resp.StatusCode == http.StatusNoContent:
			_ = drainAndClose(resp.Body)
			return nil

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter
			if wait <= 0 {
				wait = resetAfter
			}
			if wait <= 0 {
				wait = c.backoff(attempts)
			}
			_ = drainAndClose(resp.Body)
			if !c.shouldRetry(attempts) {
				return perr.Newf(perr.ErrorCodeTooManyRequests, "discord rate limited")
			}
			c.log.Warn().Dur("sleep", wait).Msg("discord rate limited backing off")
			c.sleep(wait)
			attempts++
			continue

		case resp.StatusCode == http.StatusForbidden:
			body := readTail(resp.Body)
			return perr.Newf(perr.ErrorCodeForbidden, "discord forbidden: %s %s: %s", method, path, body)

		case resp.StatusCode == http.StatusNotFound:
			_ = drainAndClose(resp.Body)
			return perr.NotFoundf("discord %s %s not found", method, path)

		case resp.StatusCode >= 500:
			_ = drainAndClose(resp.Body)
			if !c.shouldRetry(attempts) {
				return perr.Newf(perr.ErrorCodeUnavailable, "discord server error %d", resp.StatusCode)
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("retry_in", back).Int("attempt", attempts).Msg("discord transient error retrying")
			c.sleep(back)
			attempts++
			continue

		default:
			body := readTail(resp.Body)
			return perr.Newf(perr.ErrorCodeUnknown, "discord unexpected status %d body %s", resp.StatusCode, body)
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	ms := int64(c.opts.RetryBase / time.Millisecond)
	ms <<= uint(attempt)
	if ceil := int64(15 * time.Second / time.Millisecond); ms > ceil {
		ms = ceil
	}
	return time.Duration(ms) * time.Millisecond
}

func (c *Client) shouldRetry(attempt int) bool {
	return attempt < c.opts.MaxRetries
}

func readTail(rc io.ReadCloser) string {
	b, _ := io.ReadAll(io.LimitReader(rc, 2048))
	_ = rc.Close()
	return string(b)
}

func parseRateHeaders(h http.Header) (remaining int, resetAfter, retryAfter time.Duration) {
	remaining = atoi(h.Get("X-RateLimit-Remaining"))
	if s := h.Get("X-RateLimit-Reset-After"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
			resetAfter = time.Duration(f * float64(time.Second))
		}
	}
	if s := h.Get("Retry-After"); s != "" {
		if sec := atoi(s); sec > 0 {
			retryAfter = time.Duration(sec) * time.Second
		}
	}
	return
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	i, _ := strconv.Atoi(s)
	return i
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 512))
	return rc.Close()
}
