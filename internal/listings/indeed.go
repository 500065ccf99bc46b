package listings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/jobalert/notifier/internal/domain"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultRecencyDays  = 1
	unknownField        = "Unknown"
	placeholderLink     = "#"
)

// Browser-like headers; the listings site blocks obvious bots.
var fetchHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Accept-Language": "en-US,en;q=0.9",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
}

var _ Provider = (*IndeedProvider)(nil)

// IndeedProvider scrapes job cards from an Indeed-style search results
// page. Parse failures on individual cards are skipped; transport and
// status failures are returned to the caller, who is expected to wrap
// this provider with the static fallback.
type IndeedProvider struct {
	client      *resty.Client
	baseURL     string
	recencyDays int
}

func NewIndeedProvider(baseURL string) (*IndeedProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultFetchTimeout)
	client.SetRetryCount(0)

	return NewIndeedProviderWithClient(baseURL, client)
}

func NewIndeedProviderWithClient(baseURL string, client *resty.Client) (*IndeedProvider, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("listings base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid listings base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultFetchTimeout)
	}

	return &IndeedProvider{
		client:      client,
		baseURL:     trimmed,
		recencyDays: defaultRecencyDays,
	}, nil
}

func (p *IndeedProvider) Search(ctx context.Context, query, location string) ([]domain.JobPosting, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("listings provider is not initialized")
	}

	searchURL := fmt.Sprintf("%s/jobs?q=%s&l=%s&sort=date&fromage=%d",
		p.baseURL,
		url.QueryEscape(query),
		url.QueryEscape(location),
		p.recencyDays,
	)

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeaders(fetchHeaders).
		Get(searchURL)
	if err != nil {
		return nil, fmt.Errorf("listings fetch failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("listings fetch returned status %d", resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listings page: %w", err)
	}

	return p.parseCards(doc), nil
}

func (p *IndeedProvider) parseCards(doc *goquery.Document) []domain.JobPosting {
	postings := make([]domain.JobPosting, 0, MaxPostings)

	doc.Find("div.job_seen_beacon").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		title := card.Find("a.jcs-JobTitle")

		posting := domain.JobPosting{
			Title:    textOrUnknown(title),
			Company:  textOrUnknown(card.Find("span.companyName")),
			Location: textOrUnknown(card.Find("div.companyLocation")),
			Date:     textOrUnknown(card.Find("span.date")),
			Link:     placeholderLink,
		}
		if href, ok := title.Attr("href"); ok && strings.TrimSpace(href) != "" {
			posting.Link = p.baseURL + href
		}

		postings = append(postings, posting)
		return len(postings) < MaxPostings
	})

	return postings
}

func textOrUnknown(sel *goquery.Selection) string {
	text := strings.TrimSpace(sel.Text())
	if text == "" {
		return unknownField
	}
	return text
}
