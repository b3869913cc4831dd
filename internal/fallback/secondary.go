package fallback

import (
	"context"
	"errors"
	"time"

	"jobagg-engine/internal/domain"
	"jobagg-engine/internal/scrape/types"
)

// Secondary asks one more aggregator, usually the adzuna API. Partial
// postings from a failed call are accepted; only an empty answer fails.
type Secondary struct {
	adapter types.Adapter
	timeout time.Duration
}

func NewSecondary(a types.Adapter, timeout time.Duration) *Secondary {
	if timeout <= 0 {
		timeout = a.Cost().DefaultTimeout()
	}
	return &Secondary{adapter: a, timeout: timeout}
}

func (s *Secondary) Name() string { return "secondary:" + string(s.adapter.ID()) }

func (s *Secondary) Resolve(ctx context.Context, req domain.SearchRequest) ([]domain.Posting, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := s.adapter.Fetch(ctx, types.QueryFor(req))
	if len(res.Postings) > 0 {
		return res.Postings, nil
	}
	if !res.Success {
		return nil, errors.New(string(res.ErrorKind) + ": " + res.Error)
	}
	return nil, errors.New("no postings")
}
