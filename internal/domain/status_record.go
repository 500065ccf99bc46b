package domain

import "time"

// StatusRecord is the persisted delivery trail for one message id. It is
// created at intake with StatusQueued and owned by the dispatch worker
// afterwards; transitions overwrite the row with a fresh UpdatedAt.
type StatusRecord struct {
	MessageID         string
	Status            Status
	Type              Channel
	Recipient         string
	Error             *string
	ProviderMessageID *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// JobPosting is one fetched job listing. It is ephemeral: rendered into a
// message body, never persisted. Date is a free-text recency label such as
// "Just posted", not a parsed timestamp.
type JobPosting struct {
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location"`
	Date     string `json:"date"`
	Link     string `json:"link"`
}
