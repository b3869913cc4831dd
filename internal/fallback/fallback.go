// Package fallback produces a degraded answer when every requested source
// failed.
package fallback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"jobagg-engine/internal/dedupe"
	"jobagg-engine/internal/domain"
	apperr "jobagg-engine/internal/errors"

	"go.uber.org/zap"
)

type Strategy interface {
	Name() string
	Resolve(ctx context.Context, req domain.SearchRequest) ([]domain.Posting, error)
}

// synthetic is implemented by strategies whose postings are not real jobs.
type synthetic interface {
	Synthetic() bool
}

type Chain struct {
	strategies []Strategy
	now        func() time.Time
	log        *zap.Logger
}

func NewChain(log *zap.Logger, strategies ...Strategy) *Chain {
	if log == nil {
		log = zap.NewNop()
	}
	return &Chain{strategies: strategies, now: time.Now, log: log.Named("fallback")}
}

// Names lists the strategies in the order they are tried.
func (c *Chain) Names() []string {
	out := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		out = append(out, s.Name())
	}
	return out
}

// Resolve tries each strategy in order and returns the first that yields
// postings. The result is always Degraded.
func (c *Chain) Resolve(ctx context.Context, req domain.SearchRequest, fp domain.Fingerprint) (domain.AggregateResult, error) {
	var diags []string
	for _, s := range c.strategies {
		postings, err := s.Resolve(ctx, req)
		if err == nil && len(postings) == 0 {
			err = fmt.Errorf("no postings")
		}
		if err != nil {
			c.log.Warn("strategy failed", zap.String("strategy", s.Name()), zap.String("fingerprint", string(fp)), zap.Error(err))
			diags = append(diags, fmt.Sprintf("fallback %s: %v", s.Name(), err))
			continue
		}

		unique, st := dedupe.WithStats(postings)
		counts := map[domain.SourceID]int{}
		for _, p := range postings {
			counts[p.SourceID]++
		}
		isSynthetic := false
		if sy, ok := s.(synthetic); ok {
			isSynthetic = sy.Synthetic()
		}
		c.log.Info("fallback served",
			zap.String("strategy", s.Name()),
			zap.String("fingerprint", string(fp)),
			zap.Int("postings", len(unique)),
			zap.Bool("synthetic", isSynthetic),
		)
		return domain.AggregateResult{
			Fingerprint:       fp,
			Postings:          unique,
			SourceCounts:      counts,
			Errors:            diags,
			FetchedAt:         c.now(),
			Degraded:          true,
			IsSynthetic:       isSynthetic,
			FallbackStrategy:  s.Name(),
			TotalCount:        len(unique),
			DuplicatesRemoved: st.Removed,
		}, nil
	}

	msg := "no fallback strategy configured"
	if len(diags) > 0 {
		msg = strings.Join(diags, "; ")
	}
	return domain.AggregateResult{}, apperr.FallbackExhausted(msg, nil)
}
