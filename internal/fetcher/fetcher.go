// Package fetcher downloads HTML from a guarded URL with hard caps on
// redirects, body size, and wall-clock time. Redirects are followed manually
// and every hop is re-validated through the URL guard, so a public first URL
// cannot bounce the fetcher into private address space.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sitegrade/sitegrade/internal/urlguard"
)

// Error codes.
const (
	CodeTimeout          = "TIMEOUT"
	CodeNetworkError     = "NETWORK_ERROR"
	CodeTooManyRedirects = "TOO_MANY_REDIRECTS"
	CodeRedirectFailed   = "REDIRECT_FAILED"
	CodeHTTPError        = "HTTP_ERROR"
	CodeNonHTML          = "NON_HTML"
	CodeHTMLTooLarge     = "HTML_TOO_LARGE"
	CodeHTMLTooSmall     = "HTML_TOO_SMALL"
)

// Error is an analyzer failure with a machine code. TIMEOUT and NETWORK_ERROR
// are the only retryable codes; the scan queue inspects Retryable to decide
// between requeue and terminal failure.
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Retryable reports whether the queue may retry this failure.
func (e *Error) Retryable() bool {
	return e.Code == CodeTimeout || e.Code == CodeNetworkError
}

func newError(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Result is a successfully fetched page.
type Result struct {
	HTML     string
	FinalURL string
	Bytes    int64
}

// URLGuard re-validates redirect targets. Satisfied by *urlguard.Guard.
type URLGuard interface {
	GuardURL(ctx context.Context, input string) (*urlguard.GuardedURL, error)
}

// Config bounds a fetch.
type Config struct {
	Timeout      time.Duration
	MaxBytes     int64
	MinBytes     int64
	MaxRedirects int
	UserAgent    string
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 25 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 2 * 1024 * 1024
	}
	if c.MinBytes <= 0 {
		c.MinBytes = 200
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 5
	}
	return c
}

// Fetcher is the bounded HTML fetch pipeline.
type Fetcher struct {
	guard  URLGuard
	client *http.Client
	cfg    Config
}

// New creates a fetcher. A nil client gets a default with automatic redirect
// following disabled; redirects are handled in Fetch so each hop can be
// re-guarded.
func New(guard URLGuard, client *http.Client, cfg Config) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Fetcher{guard: guard, client: client, cfg: cfg.withDefaults()}
}

// Fetch downloads the page at a guarded URL. The whole operation, redirects
// included, runs under a single timeout via context cancellation.
func (f *Fetcher) Fetch(ctx context.Context, guardedURL string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	currentURL := guardedURL
	for hop := 0; ; hop++ {
		resp, err := f.doRequest(ctx, currentURL)
		if err != nil {
			return nil, classifyTransportError(ctx, err)
		}

		if isRedirect(resp.StatusCode) {
			drainAndClose(resp)
			if hop >= f.cfg.MaxRedirects {
				return nil, newError(CodeTooManyRedirects, 502, fmt.Sprintf("more than %d redirects", f.cfg.MaxRedirects))
			}
			nextURL, err := f.resolveRedirect(ctx, currentURL, resp)
			if err != nil {
				return nil, err
			}
			currentURL = nextURL
			continue
		}

		return f.readTerminalResponse(ctx, resp, currentURL)
	}
}

func (f *Fetcher) doRequest(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return f.client.Do(req)
}

// resolveRedirect resolves the Location header against the current URL and
// re-runs the guard on the target before it is followed.
func (f *Fetcher) resolveRedirect(ctx context.Context, currentURL string, resp *http.Response) (string, error) {
	location := strings.TrimSpace(resp.Header.Get("Location"))
	if location == "" {
		return "", newError(CodeRedirectFailed, 502, "redirect response without location header")
	}
	base, err := url.Parse(currentURL)
	if err != nil {
		return "", newError(CodeRedirectFailed, 502, "redirect base url invalid")
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", newError(CodeRedirectFailed, 502, "redirect location invalid")
	}
	resolved := base.ResolveReference(ref)

	guarded, err := f.guard.GuardURL(ctx, resolved.String())
	if err != nil {
		var guardErr *urlguard.Error
		if errors.As(err, &guardErr) {
			return "", err
		}
		return "", newError(CodeRedirectFailed, 502, "redirect target rejected")
	}
	return guarded.URL, nil
}

func (f *Fetcher) readTerminalResponse(ctx context.Context, resp *http.Response, finalURL string) (*Result, error) {
	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(CodeHTTPError, 502, fmt.Sprintf("target responded with status %d", resp.StatusCode))
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml+xml") {
		return nil, newError(CodeNonHTML, 422, "target did not return an html document")
	}

	// Fast reject without touching the body when the server declares a size.
	if resp.ContentLength > f.cfg.MaxBytes {
		return nil, newError(CodeHTMLTooLarge, 422, fmt.Sprintf("html exceeds %d bytes", f.cfg.MaxBytes))
	}

	// Stream with a one-byte-over limit so an unbounded or lying response is
	// aborted the moment it crosses the cap, never buffered whole.
	limited := io.LimitReader(resp.Body, f.cfg.MaxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return nil, newError(CodeHTMLTooLarge, 422, fmt.Sprintf("html exceeds %d bytes", f.cfg.MaxBytes))
	}
	if int64(len(body)) < f.cfg.MinBytes {
		return nil, newError(CodeHTMLTooSmall, 422, fmt.Sprintf("html below %d bytes is unanalyzable", f.cfg.MinBytes))
	}

	return &Result{
		HTML:     string(body),
		FinalURL: finalURL,
		Bytes:    int64(len(body)),
	}, nil
}

func classifyTransportError(ctx context.Context, err error) error {
	var fetchErr *Error
	if errors.As(err, &fetchErr) {
		return fetchErr
	}
	var guardErr *urlguard.Error
	if errors.As(err, &guardErr) {
		return guardErr
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return newError(CodeTimeout, 504, "target did not respond within the fetch budget")
	}
	return newError(CodeNetworkError, 502, "target could not be reached")
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	}
	return false
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
