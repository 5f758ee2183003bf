package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/internal/httpclient"
)

var epoch = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func TestFetchAll_FollowsNextLinksInOrder(t *testing.T) {
	var srvURL string
	var pagesSeen []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Equal(t, "2022-11-28", r.Header.Get("X-GitHub-Api-Version"))
		assert.Equal(t, "Bearer ghp_testtoken", r.Header.Get("Authorization"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pagesSeen = append(pagesSeen, r.URL.Query().Get("page"))
		next := fmt.Sprintf("%s%s?per_page=100&page=%d", srvURL, r.URL.Path, page+1)

		switch page {
		case 1:
			w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next))
			fmt.Fprint(w, items(t, 0, 100))
		case 2:
			w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next))
			fmt.Fprint(w, items(t, 100, 100))
		case 3:
			fmt.Fprint(w, items(t, 200, 37))
		default:
			t.Errorf("unexpected page %d", page)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	f := NewFetcher(FetcherConfig{BaseURL: srv.URL, Token: "ghp_testtoken", PerPage: 500},
		httpclient.New(httpclient.Options{AllowPrivateIP: true}), nil, nil, nil)

	res, err := f.FetchAll(context.Background(), ListRequest{Path: "/repos/acme/widgets/commits"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 237)
	assert.Equal(t, seq(237), ids(t, res.Items))
	assert.Equal(t, 3, res.Pages)
	assert.False(t, res.Truncated)
	assert.Equal(t, []string{"1", "2", "3"}, pagesSeen)
}

func TestFetchAll_ThrottledRetriesSamePage(t *testing.T) {
	clock := newFakeClock(epoch)
	reset := epoch.Add(5 * time.Second)
	var pages []string

	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		page := req.URL.Query().Get("page")
		pages = append(pages, page)
		switch {
		case page == "1" && len(pages) == 1:
			return response(http.StatusForbidden, `{"message":"API rate limit exceeded"}`, map[string]string{
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Reset":     strconv.FormatInt(reset.Unix(), 10),
			}), nil
		case page == "1":
			return response(http.StatusOK, items(t, 0, 100), linkNext("https://api.github.com/repos/acme/widgets/commits?per_page=100&page=2")), nil
		default:
			return response(http.StatusOK, items(t, 100, 50), nil), nil
		}
	})

	f := NewFetcher(FetcherConfig{}, doer, clock.Now, clock.Sleep, nil)
	res, err := f.FetchAll(context.Background(), ListRequest{Path: "/repos/acme/widgets/commits"})
	require.NoError(t, err)

	assert.Equal(t, seq(150), ids(t, res.Items))
	assert.Equal(t, []string{"1", "1", "2"}, pages)
	assert.Equal(t, 1, res.Waits)

	slept := clock.Slept()
	require.Len(t, slept, 1)
	assert.GreaterOrEqual(t, slept[0], 5*time.Second)
	assert.LessOrEqual(t, slept[0], 6*time.Second)
}

func TestFetchAll_ThrottleBeyondBoundFails(t *testing.T) {
	clock := newFakeClock(epoch)
	calls := 0

	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		return response(http.StatusForbidden, `{}`, map[string]string{
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     strconv.FormatInt(epoch.Add(7200*time.Second).Unix(), 10),
		}), nil
	})

	f := NewFetcher(FetcherConfig{}, doer, clock.Now, clock.Sleep, nil)
	_, err := f.FetchAll(context.Background(), ListRequest{Path: "/repos/acme/widgets/commits"})

	require.Error(t, err)
	assert.True(t, errors.IsThrottled(err))
	assert.Empty(t, clock.Slept())
	assert.Equal(t, 1, calls)
}

func TestFetchAll_ThrottleWithPastResetFails(t *testing.T) {
	clock := newFakeClock(epoch)
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		return response(http.StatusForbidden, `{}`, map[string]string{
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     strconv.FormatInt(epoch.Add(-time.Minute).Unix(), 10),
		}), nil
	})

	f := NewFetcher(FetcherConfig{}, doer, clock.Now, clock.Sleep, nil)
	_, err := f.FetchAll(context.Background(), ListRequest{Path: "/x"})
	assert.True(t, errors.IsThrottled(err))
	assert.Empty(t, clock.Slept())
}

func TestFetchAll_RetryAfterHonored(t *testing.T) {
	clock := newFakeClock(epoch)
	calls := 0
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return response(http.StatusTooManyRequests, `{}`, map[string]string{"Retry-After": "30"}), nil
		}
		return response(http.StatusOK, items(t, 0, 3), nil), nil
	})

	f := NewFetcher(FetcherConfig{}, doer, clock.Now, clock.Sleep, nil)
	res, err := f.FetchAll(context.Background(), ListRequest{Path: "/x"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
	assert.Equal(t, []time.Duration{30 * time.Second}, clock.Slept())
}

func TestFetchAll_PermanentFailureNoRetry(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusBadGateway} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			clock := newFakeClock(epoch)
			calls := 0
			doer := doerFunc(func(req *http.Request) (*http.Response, error) {
				calls++
				// 403 with quota left is an authorization problem, not throttling
				return response(status, `{"message":"nope"}`, map[string]string{"X-RateLimit-Remaining": "4999"}), nil
			})

			f := NewFetcher(FetcherConfig{PageRetries: 3}, doer, clock.Now, clock.Sleep, nil)
			_, err := f.FetchAll(context.Background(), ListRequest{Path: "/repos/acme/widgets/issues"})

			require.Error(t, err)
			assert.True(t, errors.IsPermanent(err))
			assert.Contains(t, errors.GetAllDetails(err), fmt.Sprintf("status: %d", status))
			assert.Equal(t, 1, calls)
			assert.Empty(t, clock.Slept())
		})
	}
}

func TestFetchAll_ForbiddenWithQuotaIsPermanent(t *testing.T) {
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		return response(http.StatusForbidden, `{}`, map[string]string{"X-RateLimit-Remaining": "12"}), nil
	})
	f := NewFetcher(FetcherConfig{}, doer, nil, nil, nil)
	_, err := f.FetchAll(context.Background(), ListRequest{Path: "/x"})
	assert.True(t, errors.IsPermanent(err))
}

func TestFetchAll_TransientAfterFirstPageReturnsPartial(t *testing.T) {
	clock := newFakeClock(epoch)
	page2Attempts := 0

	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("page") == "1" {
			return response(http.StatusOK, items(t, 0, 100), linkNext("https://api.github.com/x?page=2")), nil
		}
		page2Attempts++
		return nil, fmt.Errorf("connection reset by peer")
	})

	f := NewFetcher(FetcherConfig{PageRetries: 2, AllowPartial: true}, doer, clock.Now, clock.Sleep, nil)
	res, err := f.FetchAll(context.Background(), ListRequest{Path: "/x"})

	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, seq(100), ids(t, res.Items))
	assert.Equal(t, 3, page2Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Slept())
}

func TestFetchAll_TransientWithoutPartialFails(t *testing.T) {
	clock := newFakeClock(epoch)
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("page") == "1" {
			return response(http.StatusOK, items(t, 0, 100), linkNext("https://api.github.com/x?page=2")), nil
		}
		return nil, fmt.Errorf("i/o timeout")
	})

	f := NewFetcher(FetcherConfig{PageRetries: 1, AllowPartial: false}, doer, clock.Now, clock.Sleep, nil)
	_, err := f.FetchAll(context.Background(), ListRequest{Path: "/x"})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestFetchAll_TransientOnFirstPageFails(t *testing.T) {
	clock := newFakeClock(epoch)
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		return nil, fmt.Errorf("i/o timeout")
	})

	f := NewFetcher(FetcherConfig{PageRetries: 1, AllowPartial: true}, doer, clock.Now, clock.Sleep, nil)
	res, err := f.FetchAll(context.Background(), ListRequest{Path: "/x"})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Empty(t, res.Items)
}

func TestFetchAll_TransientRecoversWithinRetries(t *testing.T) {
	clock := newFakeClock(epoch)
	calls := 0
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("connection reset")
		}
		return response(http.StatusOK, items(t, 0, 5), nil), nil
	})

	f := NewFetcher(FetcherConfig{PageRetries: 3}, doer, clock.Now, clock.Sleep, nil)
	res, err := f.FetchAll(context.Background(), ListRequest{Path: "/x"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 5)
	assert.False(t, res.Truncated)
}

func TestFetchAll_GarbledBodyBacksOff(t *testing.T) {
	clock := newFakeClock(epoch)
	calls := 0
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls <= 2 {
			return response(http.StatusOK, `[{"id": 1`, nil), nil
		}
		return response(http.StatusOK, items(t, 0, 3), nil), nil
	})

	f := NewFetcher(FetcherConfig{PageRetries: 3, RetryBackoff: time.Second}, doer, clock.Now, clock.Sleep, nil)
	res, err := f.FetchAll(context.Background(), ListRequest{Path: "/x"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Slept())
}

func TestFetchAll_EmptyPageStops(t *testing.T) {
	calls := 0
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return response(http.StatusOK, items(t, 0, 2), linkNext("https://api.github.com/x?page=2")), nil
		}
		return response(http.StatusOK, `[]`, linkNext("https://api.github.com/x?page=3")), nil
	})

	f := NewFetcher(FetcherConfig{}, doer, nil, nil, nil)
	res, err := f.FetchAll(context.Background(), ListRequest{Path: "/x"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, 2, calls)
}

func TestFetchAll_StopHook(t *testing.T) {
	calls := 0
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		return response(http.StatusOK, items(t, (calls-1)*10, 10), linkNext("https://api.github.com/x?page=next")), nil
	})

	f := NewFetcher(FetcherConfig{}, doer, nil, nil, nil)
	res, err := f.FetchAll(context.Background(), ListRequest{
		Path: "/x",
		Stop: func(last json.RawMessage) bool {
			var v struct{ ID int }
			_ = json.Unmarshal(last, &v)
			return v.ID >= 19
		},
	})
	require.NoError(t, err)
	assert.Len(t, res.Items, 20)
	assert.Equal(t, 2, calls)
}

func TestFetchAll_RelativeNextLink(t *testing.T) {
	var urls []string
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		urls = append(urls, req.URL.String())
		if len(urls) == 1 {
			return response(http.StatusOK, items(t, 0, 1), map[string]string{"Link": `</repos/a/b/commits?page=2>; rel="next"`}), nil
		}
		return response(http.StatusOK, items(t, 1, 1), nil), nil
	})

	f := NewFetcher(FetcherConfig{BaseURL: "https://ghe.example.com/api/v3"}, doer, nil, nil, nil)
	_, err := f.FetchAll(context.Background(), ListRequest{Path: "/repos/a/b/commits"})
	require.NoError(t, err)
	require.Len(t, urls, 2)
	assert.Equal(t, "https://ghe.example.com/repos/a/b/commits?page=2", urls[1])
}

func TestFetchAll_LegacyTokenScheme(t *testing.T) {
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "token 0123456789abcdef0123456789abcdef01234567", req.Header.Get("Authorization"))
		return response(http.StatusOK, `[]`, nil), nil
	})
	f := NewFetcher(FetcherConfig{Token: "0123456789abcdef0123456789abcdef01234567"}, doer, nil, nil, nil)
	_, err := f.FetchAll(context.Background(), ListRequest{Path: "/x"})
	require.NoError(t, err)
}
