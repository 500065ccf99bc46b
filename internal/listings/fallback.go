package listings

import (
	"context"

	"github.com/jobalert/notifier/internal/domain"
	"go.uber.org/zap"
)

var _ Provider = (*FallbackProvider)(nil)

// FallbackProvider tries the primary provider and falls back to a
// secondary one when the primary fails or returns nothing. It never
// returns an error: enrichment is best effort and must not fail an
// envelope.
type FallbackProvider struct {
	primary   Provider
	secondary Provider
	logger    *zap.Logger
}

func NewFallbackProvider(primary, secondary Provider, logger *zap.Logger) *FallbackProvider {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FallbackProvider{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

func (p *FallbackProvider) Search(ctx context.Context, query, location string) ([]domain.JobPosting, error) {
	if p.primary != nil {
		postings, err := p.primary.Search(ctx, query, location)
		if err == nil && len(postings) > 0 {
			return capPostings(postings), nil
		}
		if err != nil {
			p.logger.Warn("live listings fetch failed, using fallback",
				zap.String("query", query),
				zap.String("location", location),
				zap.Error(err),
			)
		}
	}

	if p.secondary == nil {
		return nil, nil
	}

	postings, err := p.secondary.Search(ctx, query, location)
	if err != nil {
		p.logger.Warn("fallback listings lookup failed",
			zap.String("query", query),
			zap.Error(err),
		)
		return nil, nil
	}

	return capPostings(postings), nil
}
