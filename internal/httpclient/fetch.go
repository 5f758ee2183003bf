package httpclient

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/teranos/sentinel/errors"
)

// DefaultMaxBody bounds response bodies read by FetchBody
const DefaultMaxBody = 10 * 1024 * 1024

// FetchBody GETs rawURL and returns the body, classified with the error
// taxonomy: network failures are Transient, 429 (or 503 with Retry-After)
// is Throttled, any other non-2xx is PermanentFailure.
func FetchBody(ctx context.Context, c Doer, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.NewInvalidRequestError("invalid url %q: %v", rawURL, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, "GET %s", req.URL.Host)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusServiceUnavailable && resp.Header.Get("Retry-After") != "") {
		err := errors.NewThrottled("GET %s: HTTP %d", req.URL.Host, resp.StatusCode)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			err = errors.WithDetailf(err, "retry_after: %s", ra)
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.WithDetail(
			errors.NewPermanentFailure(resp.StatusCode, "GET %s%s: HTTP %d", req.URL.Host, req.URL.Path, resp.StatusCode),
			strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, DefaultMaxBody))
	if err != nil {
		return nil, errors.WrapTransient(err, "read body from %s", req.URL.Host)
	}
	return body, nil
}
