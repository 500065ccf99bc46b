// Package format renders job listings into channel-appropriate message
// bodies. Renderers are pure: identical input yields byte-identical output
// and no I/O happens here.
package format

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/jobalert/notifier/internal/domain"
)

// SMSPostingLimit caps how many postings an SMS enumerates.
const SMSPostingLimit = 3

const smsFooter = "Reply STOP to unsubscribe."

var emailTmpl = template.Must(template.New("jobsEmail").Parse(`<html>
<head>
<style>
  body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
  h1 { color: #2557a7; }
  .job { border: 1px solid #ddd; padding: 15px; margin-bottom: 20px; border-radius: 5px; }
  .job-title { color: #2557a7; font-size: 18px; margin-bottom: 5px; }
  .company { font-weight: bold; }
  .location { color: #666; }
  .date { color: #666; font-style: italic; }
  .apply { display: inline-block; background-color: #2557a7; color: white; padding: 8px 15px;
           text-decoration: none; border-radius: 4px; margin-top: 10px; }
</style>
</head>
<body>
<h1>Latest {{.Query}} Job Opportunities</h1>
<p>Here are the latest job postings for {{.Query}} from the past 24 hours:</p>
{{range .Postings}}<div class="job">
  <div class="job-title">{{.Title}}</div>
  <div class="company">{{.Company}}</div>
  <div class="location">{{.Location}}</div>
  <div class="date">Posted: {{.Date}}</div>
  <a href="{{.Link}}" class="apply" target="_blank">View Job</a>
</div>
{{end}}</body>
</html>
`))

// NoJobsMessage is the shared empty-result sentence for both channels.
func NoJobsMessage(query string) string {
	return fmt.Sprintf("No new %s jobs found in the last 24 hours.", query)
}

// EmailSubject returns the subject line for an enriched email.
func EmailSubject(query string) string {
	return fmt.Sprintf("Latest %s Job Opportunities", query)
}

// RenderEmail renders postings as a self-contained HTML document. An empty
// posting list yields the plain no-results sentence instead of markup.
func RenderEmail(postings []domain.JobPosting, query string) (string, error) {
	if len(postings) == 0 {
		return NoJobsMessage(query), nil
	}

	var b strings.Builder
	err := emailTmpl.Execute(&b, struct {
		Query    string
		Postings []domain.JobPosting
	}{Query: query, Postings: postings})
	if err != nil {
		return "", fmt.Errorf("failed to render email body: %w", err)
	}

	return b.String(), nil
}

// RenderSMS renders a compact text digest: header, up to SMSPostingLimit
// enumerated postings, unsubscribe footer.
func RenderSMS(postings []domain.JobPosting, query string) string {
	if len(postings) == 0 {
		return NoJobsMessage(query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Latest %s Jobs:\n\n", query)

	limit := min(len(postings), SMSPostingLimit)
	for i := 0; i < limit; i++ {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, postings[i].Company, postings[i].Title)
	}

	b.WriteString("\n")
	b.WriteString(smsFooter)

	return b.String()
}
