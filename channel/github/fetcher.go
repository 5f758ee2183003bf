package github

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/internal/httpclient"
	"github.com/teranos/sentinel/logger"
)

const (
	// MaxPerPage is the provider's page-size cap
	MaxPerPage = 100
	// DefaultMaxResetWait bounds how long a throttled fetch may block
	DefaultMaxResetWait = time.Hour
	// DefaultBaseURL is the public REST endpoint
	DefaultBaseURL = "https://api.github.com"

	apiVersion       = "2022-11-28"
	acceptHeader     = "application/vnd.github+json"
	maxBodyBytes     = 10 * 1024 * 1024
	maxErrorBody     = 1024
	maxThrottleWaits = 5
)

// FetcherConfig configures pagination, throttling and retry policy.
type FetcherConfig struct {
	BaseURL      string
	Token        string
	PerPage      int           // capped at MaxPerPage
	MaxResetWait time.Duration // Default: 1h
	PageRetries  int           // transient retries per page
	RetryBackoff time.Duration // first transient backoff, doubled per retry (Default: 1s)

	// AllowPartial returns what earlier pages accumulated when a later page
	// fails transiently, instead of the error.
	AllowPartial bool
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Fetcher retrieves complete paginated listings from a rate-limited provider.
// It runs one request at a time; concurrent use of one Fetcher is safe but
// serializes nothing, so callers sharing a quota share a host limiter instead.
type Fetcher struct {
	cfg    FetcherConfig
	client httpclient.Doer
	now    func() time.Time
	sleep  SleepFunc
	logger *zap.SugaredLogger
}

// NewFetcher creates a fetcher. now and sleep are injectable for tests;
// nil selects the wall clock and a context-aware timer.
func NewFetcher(cfg FetcherConfig, client httpclient.Doer, now func() time.Time, sleep SleepFunc, log *zap.SugaredLogger) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PerPage <= 0 || cfg.PerPage > MaxPerPage {
		cfg.PerPage = MaxPerPage
	}
	if cfg.MaxResetWait <= 0 {
		cfg.MaxResetWait = DefaultMaxResetWait
	}
	if cfg.PageRetries < 0 {
		cfg.PageRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = sleepContext
	}
	return &Fetcher{cfg: cfg, client: client, now: now, sleep: sleep, logger: logger.OrNop(log)}
}

// ListRequest names one paginated listing.
type ListRequest struct {
	Path  string     // e.g. /repos/acme/widgets/commits
	Query url.Values // per_page and page are set by the fetcher

	// Stop, when set, ends pagination after the page whose last item it
	// accepts. Listings sorted newest-first use it to stop at the window start.
	Stop func(last json.RawMessage) bool
}

// ListResult is the accumulated listing.
type ListResult struct {
	Items     []json.RawMessage
	Pages     int
	Waits     int  // throttle backoffs taken
	Truncated bool // a transient failure cut pagination short
}

// FetchAll walks pages starting at 1, following rel="next", until no next
// link is advertised or a page is empty. Items keep provider order.
//
// Throttled pages are retried after the reset when it lies within
// MaxResetWait; otherwise the fetch fails with a Throttled error. Any other
// non-2xx status fails immediately with PermanentFailure. Network failures
// are retried PageRetries times; after that the accumulation so far is
// returned with Truncated set (AllowPartial and at least one page fetched),
// otherwise a Transient error.
func (f *Fetcher) FetchAll(ctx context.Context, req ListRequest) (ListResult, error) {
	var result ListResult

	next, err := f.firstPageURL(req)
	if err != nil {
		return result, err
	}

	for page := 1; next != ""; page++ {
		items, link, waits, err := f.fetchPage(ctx, next, page)
		result.Waits += waits
		if err != nil {
			if errors.IsTransient(err) && f.cfg.AllowPartial && result.Pages > 0 {
				f.logger.Warnw("Returning partial listing after transient failure",
					logger.FieldPath, req.Path,
					logger.FieldPage, page,
					logger.FieldCount, len(result.Items),
					logger.FieldError, err)
				result.Truncated = true
				return result, nil
			}
			return result, err
		}

		result.Pages++
		if len(items) == 0 {
			break
		}
		result.Items = append(result.Items, items...)

		if req.Stop != nil && req.Stop(items[len(items)-1]) {
			break
		}
		next = link
	}

	f.logger.Debugw("Listing fetched",
		logger.FieldPath, req.Path,
		"pages", result.Pages,
		logger.FieldCount, len(result.Items))
	return result, nil
}

func (f *Fetcher) firstPageURL(req ListRequest) (string, error) {
	u, err := url.Parse(f.cfg.BaseURL)
	if err != nil {
		return "", errors.NewConfigError("invalid api base url %q: %v", f.cfg.BaseURL, err)
	}
	u = u.JoinPath(req.Path)

	q := url.Values{}
	for k, vs := range req.Query {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("per_page", strconv.Itoa(f.cfg.PerPage))
	q.Set("page", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// fetchPage requests one page, retrying it in place for throttling and
// transient failures. It returns the page items and the next-page URL.
func (f *Fetcher) fetchPage(ctx context.Context, pageURL string, page int) ([]json.RawMessage, string, int, error) {
	attempt := 0
	waits := 0

	for {
		resp, err := f.do(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", waits, errors.WrapTransient(err, "page %d canceled", page)
			}
			attempt++
			if attempt > f.cfg.PageRetries {
				return nil, "", waits, errors.WrapTransient(err, "page %d failed after %d attempts", page, attempt)
			}
			if err := f.backoff(ctx, page, attempt, err); err != nil {
				return nil, "", waits, err
			}
			continue
		}

		state := parseRateLimit(resp.Header)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			items, err := decodePage(resp)
			if err != nil {
				// Truncated or garbled body counts as a network failure
				attempt++
				if attempt > f.cfg.PageRetries {
					return nil, "", waits, errors.WrapTransient(err, "page %d undecodable", page)
				}
				if err := f.backoff(ctx, page, attempt, err); err != nil {
					return nil, "", waits, err
				}
				continue
			}
			link := resolveLink(pageURL, nextLink(resp.Header))
			f.logger.Debugw("Page fetched",
				logger.FieldPage, page,
				logger.FieldCount, len(items),
				logger.FieldRemaining, state.Remaining)
			return items, link, waits, nil

		case isThrottled(resp.StatusCode, state):
			drain(resp)
			wait := throttleWait(state, f.now())
			if wait <= 0 || wait > f.cfg.MaxResetWait {
				return nil, "", waits, errors.WithDetailf(
					errors.NewThrottled("page %d throttled: reset in %s exceeds max wait %s", page, wait, f.cfg.MaxResetWait),
					"reset_at: %s", state.ResetAt.UTC().Format(time.RFC3339))
			}
			if waits >= maxThrottleWaits {
				return nil, "", waits, errors.NewThrottled("page %d still throttled after %d waits", page, waits)
			}
			waits++
			f.logger.Warnw("Rate limited, waiting for reset",
				logger.FieldPage, page,
				logger.FieldWait, wait.String(),
				logger.FieldResetAt, state.ResetAt)
			if err := f.sleep(ctx, wait); err != nil {
				return nil, "", waits, errors.WrapTransient(err, "page %d throttle wait interrupted", page)
			}

		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			return nil, "", waits, errors.WithDetail(
				errors.NewPermanentFailure(resp.StatusCode, "GET %s: HTTP %d", redactURL(pageURL), resp.StatusCode),
				string(body))
		}
	}
}

// backoff sleeps before the given retry attempt, doubling from RetryBackoff.
func (f *Fetcher) backoff(ctx context.Context, page, attempt int, cause error) error {
	wait := f.cfg.RetryBackoff << (attempt - 1)
	f.logger.Debugw("Retrying page after transient failure",
		logger.FieldPage, page,
		"attempt", attempt,
		logger.FieldWait, wait.String(),
		logger.FieldError, cause)
	if err := f.sleep(ctx, wait); err != nil {
		return errors.WrapTransient(err, "page %d backoff interrupted", page)
	}
	return nil
}

func (f *Fetcher) do(ctx context.Context, pageURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if f.cfg.Token != "" {
		req.Header.Set("Authorization", authScheme(f.cfg.Token)+" "+f.cfg.Token)
	}
	return f.client.Do(req)
}

func decodePage(resp *http.Response) ([]json.RawMessage, error) {
	defer resp.Body.Close()
	var items []json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&items); err != nil {
		return nil, errors.Wrap(err, "expected JSON array")
	}
	return items, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}

// resolveLink makes a possibly relative next link absolute
func resolveLink(current, link string) string {
	if link == "" {
		return ""
	}
	base, err := url.Parse(current)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// redactURL drops the query string from URLs placed in errors
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
