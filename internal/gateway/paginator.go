package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/sirupsen/logrus"
)

const (
	defaultPageDelay  = 50 * time.Millisecond
	defaultRetryDelay = 5 * time.Second
)

// Response is the structured result of a single GET.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// NextURL is the rel="next" target from the Link header, or empty on the last page.
	NextURL string
	// Throttled is set for a 429 and for an exhausted primary quota, whether GitHub
	// reported it or the client refused to send the request until the reset.
	Throttled bool
}

// StatusError is returned for any non-2xx status other than 429.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github API error %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// Paginator walks cursor-paginated REST resources while honouring the shared RateBudget.
type Paginator struct {
	client     *github.Client
	budget     *RateBudget
	logger     logrus.FieldLogger
	pageDelay  time.Duration
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// PaginatorOption customises a Paginator.
type PaginatorOption func(*Paginator)

// WithPageDelay sets the pause between successful pages.
func WithPageDelay(d time.Duration) PaginatorOption {
	return func(p *Paginator) { p.pageDelay = d }
}

// WithRetryDelay sets the pause before re-requesting a throttled page.
func WithRetryDelay(d time.Duration) PaginatorOption {
	return func(p *Paginator) { p.retryDelay = d }
}

// NewPaginator creates a Paginator issuing requests through client, relative to its BaseURL.
// A nil budget gets a fresh one.
func NewPaginator(client *github.Client, budget *RateBudget, logger logrus.FieldLogger, opts ...PaginatorOption) *Paginator {
	if budget == nil {
		budget = NewRateBudget()
	}
	p := &Paginator{
		client:     client,
		budget:     budget,
		logger:     logger,
		pageDelay:  defaultPageDelay,
		retryDelay: defaultRetryDelay,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Budget exposes the shared rate budget.
func (p *Paginator) Budget() *RateBudget {
	return p.budget
}

// Get issues one GET. target is either a path relative to the client's base URL or an
// absolute URL taken from a Link header, in which case params should be empty.
// Only transport and read failures are returned as errors; status handling is left to the caller.
func (p *Paginator) Get(ctx context.Context, target string, params url.Values) (*Response, error) {
	// The base URL keeps its path prefix (e.g. /api/v3/) only for targets without a leading slash.
	target = strings.TrimPrefix(target, "/")
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + params.Encode()
	}

	req, err := p.client.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// BareDo reports every non-2xx status as an error alongside the response.
	resp, doErr := p.client.BareDo(ctx, req)
	if resp == nil || resp.Response == nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL, doErr)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.URL, err)
	}
	p.budget.Observe(resp.Header, time.Now())

	var rateErr *github.RateLimitError
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		NextURL:    ParseNextLink(resp.Header.Get("Link")),
		Throttled:  resp.StatusCode == http.StatusTooManyRequests || errors.As(doErr, &rateErr),
	}, nil
}

// ParseNextLink extracts the rel="next" URL from a Link header of the form
// `<url>; rel="next", <url>; rel="last"`. It returns "" when there is none.
func ParseNextLink(header string) string {
	if header == "" {
		return ""
	}
	for _, link := range strings.Split(header, ",") {
		parts := strings.Split(link, ";")
		if len(parts) < 2 {
			continue
		}
		for _, param := range parts[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return strings.Trim(strings.TrimSpace(parts[0]), "<>")
			}
		}
	}
	return ""
}

// FetchAllPages follows Link headers from endpoint until the last page, collecting
// every item. If more is non-nil and returns false for a page's items, pagination
// stops after that page even when a next link exists.
//
// A throttled response (429, or an exhausted primary quota) is retried on the same
// page after the paginator's retry delay, with no ceiling. Any other non-2xx status aborts with a *StatusError and the
// pages gathered so far are discarded.
func FetchAllPages[T any](ctx context.Context, p *Paginator, endpoint string, params url.Values, more func([]T) bool) ([]T, error) {
	var all []T
	target := endpoint
	page := 1
	for {
		if err := p.budget.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := p.Get(ctx, target, params)
		if err != nil {
			return nil, err
		}

		if resp.Throttled {
			p.logger.WithFields(logrus.Fields{"url": target, "page": page, "delay": p.retryDelay}).Warn("Throttled by GitHub, retrying page")
			if err := p.sleep(ctx, p.retryDelay); err != nil {
				return nil, err
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{URL: target, StatusCode: resp.StatusCode, Body: string(resp.Body)}
		}

		var items []T
		if err := json.Unmarshal(resp.Body, &items); err != nil {
			return nil, fmt.Errorf("failed to decode page %d of %s: %w", page, target, err)
		}
		all = append(all, items...)
		p.logger.WithFields(logrus.Fields{"url": target, "page": page, "items": len(items)}).Debug("Fetched page")

		if more != nil && !more(items) {
			p.logger.WithField("page", page).Debug("Stopping pagination early")
			break
		}
		if resp.NextURL == "" {
			break
		}

		// The next link already carries every query parameter.
		target, params = resp.NextURL, nil
		page++
		if err := p.sleep(ctx, p.pageDelay); err != nil {
			return nil, err
		}
	}
	return all, nil
}
