// Package listings fetches job postings for a free-text title and
// location. The live source is a scraped third-party page whose structure
// is not under our control, so callers are expected to go through the
// fallback provider, which degrades to a built-in sample set instead of
// surfacing fetch errors.
package listings

import (
	"context"

	"github.com/jobalert/notifier/internal/domain"
)

// MaxPostings bounds every provider's result size.
const MaxPostings = 5

// Provider returns job postings for a query and location.
type Provider interface {
	Search(ctx context.Context, query, location string) ([]domain.JobPosting, error)
}

func capPostings(postings []domain.JobPosting) []domain.JobPosting {
	if len(postings) > MaxPostings {
		return postings[:MaxPostings]
	}
	return postings
}
