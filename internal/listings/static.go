package listings

import (
	"context"
	"strings"

	"github.com/jobalert/notifier/internal/domain"
)

type sampleSet struct {
	title    string
	postings []domain.JobPosting
}

// Ordered so the no-match fallback is deterministic.
var sampleSets = []sampleSet{
	{
		title: "Data Scientist",
		postings: []domain.JobPosting{
			{Title: "Senior Data Scientist", Company: "Tech Innovations Inc", Location: "New York, NY (Remote)", Date: "Just posted", Link: "https://www.indeed.com/viewjob?jk=abc123"},
			{Title: "Data Scientist, Machine Learning", Company: "DataCorp Analytics", Location: "New York, NY", Date: "Today", Link: "https://www.indeed.com/viewjob?jk=def456"},
			{Title: "AI/ML Data Scientist", Company: "Big Tech Co", Location: "Remote in New York", Date: "1 day ago", Link: "https://www.indeed.com/viewjob?jk=ghi789"},
			{Title: "Data Scientist - NLP", Company: "FinTech Solutions", Location: "New York or Remote", Date: "Today", Link: "https://www.indeed.com/viewjob?jk=jkl101"},
			{Title: "Junior Data Scientist", Company: "StartUp Adventures", Location: "New York, NY", Date: "Just posted", Link: "https://www.indeed.com/viewjob?jk=mno112"},
		},
	},
	{
		title: "Software Engineer",
		postings: []domain.JobPosting{
			{Title: "Senior Software Engineer", Company: "CodeCraft Technologies", Location: "Remote", Date: "Just posted", Link: "https://www.indeed.com/viewjob?jk=pqr131"},
			{Title: "Full Stack Software Engineer", Company: "WebDev Pros", Location: "Remote (US)", Date: "Today", Link: "https://www.indeed.com/viewjob?jk=stu415"},
			{Title: "Backend Software Engineer - Python", Company: "Software Solutions Inc", Location: "Remote", Date: "1 day ago", Link: "https://www.indeed.com/viewjob?jk=vwx161"},
			{Title: "Frontend React Engineer", Company: "User Interface Co", Location: "Remote, US-based", Date: "Today", Link: "https://www.indeed.com/viewjob?jk=yz1718"},
		},
	},
}

var _ Provider = (*StaticProvider)(nil)

// StaticProvider serves the built-in sample sets. Selection order: exact
// title match, then case-insensitive substring match in either direction,
// then the first sample set.
type StaticProvider struct{}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

func (p *StaticProvider) Search(_ context.Context, query, _ string) ([]domain.JobPosting, error) {
	for _, set := range sampleSets {
		if set.title == query {
			return capPostings(set.postings), nil
		}
	}

	lowered := strings.ToLower(query)
	for _, set := range sampleSets {
		title := strings.ToLower(set.title)
		if strings.Contains(title, lowered) || strings.Contains(lowered, title) {
			return capPostings(set.postings), nil
		}
	}

	return capPostings(sampleSets[0].postings), nil
}
