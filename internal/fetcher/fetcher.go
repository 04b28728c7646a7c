package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ikoma-ai/ikoma/internal/config"
	"github.com/ikoma-ai/ikoma/internal/weburl"
)

// Error kinds carried on failed responses so tools can translate them.
const (
	ErrKindDomainDenied    = "domain_denied"
	ErrKindRateLimited     = "rate_limited"
	ErrKindBackoff         = "backoff"
	ErrKindContentTooLarge = "content_too_large"
	ErrKindNetwork         = "network_error"
	ErrKindBadURL          = "bad_url"
)

// Response is the structured record every fetch returns. The HTTP path never
// returns a Go error; failures are encoded here.
type Response struct {
	Success       bool              `json:"success"`
	URL           string            `json:"url"`
	FinalURL      string            `json:"final_url,omitempty"`
	Domain        string            `json:"domain"`
	Method        string            `json:"method"`
	StatusCode    int               `json:"status_code,omitempty"`
	Content       string            `json:"content,omitempty"`
	ContentLength int               `json:"content_length,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Cached        bool              `json:"cached"`
	Error         string            `json:"error,omitempty"`
	ErrorKind     string            `json:"error_kind,omitempty"`
}

// Options configures a Fetcher. Zero values fall back to the defaults in
// the config package.
type Options struct {
	Filter          *DomainFilter
	CacheDir        string
	CacheTTL        time.Duration
	UserAgents      []string
	Timeout         time.Duration
	MaxResponseSize int64

	BucketCapacity    int
	RefillRate        float64
	BackoffBase       time.Duration
	BackoffMultiplier float64
	BackoffMax        time.Duration
}

// Fetcher is the rate-limited, domain-filtered HTTP client. It is safe for
// concurrent use by multiple runs.
type Fetcher struct {
	client  *http.Client
	filter  *DomainFilter
	limiter *Limiter
	cache   *Cache

	userAgents []string
	uaIndex    atomic.Uint64
	maxSize    int64

	cacheHits atomic.Int64
}

// New creates a fetcher.
func New(opts Options) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = config.DefaultHTTPTimeout
	}
	if opts.MaxResponseSize == 0 {
		opts.MaxResponseSize = config.DefaultMaxResponseSize
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = config.DefaultCacheTTL
	}
	if opts.BucketCapacity == 0 {
		opts.BucketCapacity = config.DefaultBucketCapacity
	}
	if opts.RefillRate == 0 {
		opts.RefillRate = config.DefaultRefillRate
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = config.DefaultBackoffBase
	}
	if opts.BackoffMultiplier == 0 {
		opts.BackoffMultiplier = config.DefaultBackoffMultiplier
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = config.DefaultBackoffMax
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = []string{"ikoma/1.0 (+https://github.com/ikoma-ai/ikoma)"}
	}

	// The Control hook rejects connections whose resolved address landed in
	// private space, even if the hostname validated earlier (DNS rebinding).
	dialer := &net.Dialer{Control: weburl.DialControl}

	f := &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: &http.Transport{DialContext: dialer.DialContext},
			// Redirects are allowed for GET; the final URL is recorded on
			// the response. Each hop is re-validated.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (max 5)")
				}
				if err := weburl.ValidateHost(req.URL.Hostname()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		filter:     opts.Filter,
		limiter:    NewLimiter(opts.BucketCapacity, opts.RefillRate, opts.BackoffBase, opts.BackoffMultiplier, opts.BackoffMax),
		userAgents: opts.UserAgents,
		maxSize:    opts.MaxResponseSize,
	}
	if opts.CacheDir != "" {
		f.cache = NewCache(opts.CacheDir, opts.CacheTTL)
	}
	return f
}

func (f *Fetcher) nextUserAgent() string {
	i := f.uaIndex.Add(1)
	return f.userAgents[int(i)%len(f.userAgents)]
}

func failure(rawURL, domain, kind, msg string) *Response {
	return &Response{
		Success:   false,
		URL:       rawURL,
		Domain:    domain,
		Method:    http.MethodGet,
		Timestamp: time.Now().UTC(),
		Error:     msg,
		ErrorKind: kind,
	}
}

// Get fetches a URL. Filtering, rate limiting, backoff, and the cache are
// all consulted before any network I/O happens.
func (f *Fetcher) Get(ctx context.Context, rawURL string, headers map[string]string, useCache bool) *Response {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return failure(rawURL, "", ErrKindBadURL, "invalid URL")
	}
	domain := strings.ToLower(parsed.Hostname())

	if err := weburl.ValidateHost(domain); err != nil {
		return failure(rawURL, domain, ErrKindDomainDenied, "Domain blocked: "+err.Error())
	}
	if f.filter != nil && !f.filter.Allowed(domain) {
		return failure(rawURL, domain, ErrKindDomainDenied, "Domain blocked: "+domain)
	}

	if useCache && f.cache != nil {
		if entry := f.cache.Get(http.MethodGet, rawURL); entry != nil {
			f.cacheHits.Add(1)
			return &Response{
				Success:       true,
				URL:           rawURL,
				Domain:        domain,
				Method:        http.MethodGet,
				StatusCode:    entry.StatusCode,
				Content:       entry.Content,
				ContentLength: entry.ContentLength,
				Headers:       entry.Headers,
				Timestamp:     entry.Timestamp,
				Cached:        true,
			}
		}
	}

	ok, retryAfter, inBackoff := f.limiter.Acquire(domain)
	if !ok {
		if inBackoff {
			return failure(rawURL, domain, ErrKindBackoff,
				fmt.Sprintf("domain %s is in backoff for %.1fs", domain, retryAfter.Seconds()))
		}
		return failure(rawURL, domain, ErrKindRateLimited,
			fmt.Sprintf("rate limited for domain %s, retry in %.0fms", domain, float64(retryAfter.Milliseconds())))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return failure(rawURL, domain, ErrKindBadURL, err.Error())
	}
	req.Header.Set("User-Agent", f.nextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return failure(rawURL, domain, ErrKindNetwork, err.Error())
	}
	defer resp.Body.Close()

	f.limiter.ReportStatus(domain, resp.StatusCode)

	// Reject oversize responses before buffering when the server declares
	// a length; otherwise a limited reader catches liars.
	if resp.ContentLength > f.maxSize {
		return failure(rawURL, domain, ErrKindContentTooLarge,
			fmt.Sprintf("response size %d exceeds limit %d", resp.ContentLength, f.maxSize))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return failure(rawURL, domain, ErrKindNetwork, "read body: "+err.Error())
	}
	if int64(len(body)) > f.maxSize {
		return failure(rawURL, domain, ErrKindContentTooLarge,
			fmt.Sprintf("response exceeds limit %d", f.maxSize))
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	out := &Response{
		Success:       resp.StatusCode >= 200 && resp.StatusCode < 400,
		URL:           rawURL,
		FinalURL:      resp.Request.URL.String(),
		Domain:        domain,
		Method:        http.MethodGet,
		StatusCode:    resp.StatusCode,
		Content:       string(body),
		ContentLength: len(body),
		Headers:       respHeaders,
		Timestamp:     time.Now().UTC(),
	}
	if !out.Success {
		out.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		out.ErrorKind = ErrKindNetwork
	}

	if out.Success && useCache && f.cache != nil {
		if err := f.cache.Put(cacheEntry{
			URL:           rawURL,
			Method:        http.MethodGet,
			StatusCode:    out.StatusCode,
			Headers:       respHeaders,
			Content:       out.Content,
			ContentLength: out.ContentLength,
			Encoding:      resp.Header.Get("Content-Encoding"),
			Cached:        true,
		}); err != nil {
			// Cache write failures are not fetch failures.
			slog.Debug("cache write failed", "url", rawURL, "error", err)
		}
	}

	return out
}

// Stats returns per-domain limiter counters plus global cache hits.
type Stats struct {
	Domains   map[string]DomainStats `json:"domains"`
	CacheHits int64                  `json:"cache_hits"`
}

func (f *Fetcher) Stats() Stats {
	return Stats{
		Domains:   f.limiter.Stats(),
		CacheHits: f.cacheHits.Load(),
	}
}
