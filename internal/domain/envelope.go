package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusSent, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions follow this status.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

const (
	// DefaultSubject is used for email envelopes that carry no subject.
	DefaultSubject = "Notification"
	// DefaultJobLocation is used for job-search envelopes without a location.
	DefaultJobLocation = "remote"
)

// Envelope is one queued unit of notification work. Identity fields are
// fixed at intake; only Message and Subject may be replaced by enrichment
// before the send.
type Envelope struct {
	MessageID   string  `json:"message_id"`
	Type        Channel `json:"type"`
	Recipient   string  `json:"recipient"`
	Message     string  `json:"message"`
	Subject     string  `json:"subject,omitempty"`
	JobSearch   bool    `json:"job_search,omitempty"`
	JobTitle    string  `json:"job_title,omitempty"`
	JobLocation string  `json:"job_location,omitempty"`
}

func (e *Envelope) Validate() error {
	if strings.TrimSpace(e.MessageID) == "" {
		return fmt.Errorf("%w: message_id is required", ErrValidation)
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("%w: unsupported notification type %q", ErrValidation, e.Type)
	}
	if strings.TrimSpace(e.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if e.JobSearch {
		if strings.TrimSpace(e.JobTitle) == "" {
			return fmt.Errorf("%w: job_title is required when job_search is set", ErrValidation)
		}
	} else if strings.TrimSpace(e.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	return nil
}

// Normalize fills default subject and job location.
func (e *Envelope) Normalize() {
	if strings.TrimSpace(e.Subject) == "" {
		e.Subject = DefaultSubject
	}
	if e.JobSearch && strings.TrimSpace(e.JobLocation) == "" {
		e.JobLocation = DefaultJobLocation
	}
}

// ParseEnvelope decodes and validates a queue payload. A json decode error
// means no identity could be recovered; a validation error still carries
// whatever message_id the payload held.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope payload: %w", err)
	}

	env.Type = Channel(strings.ToLower(strings.TrimSpace(env.Type.String())))
	if err := env.Validate(); err != nil {
		return &env, err
	}

	env.Normalize()
	return &env, nil
}

// RecoverMessageID extracts a message id from an otherwise unparseable
// payload, best effort.
func RecoverMessageID(raw []byte) string {
	var probe struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(probe.MessageID)
}
