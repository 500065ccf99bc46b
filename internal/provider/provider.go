// Package provider contains the outbound delivery gateways. Every send
// returns a DeliveryResult so the dispatch worker can treat transport
// success and failure uniformly; gateways never panic and never leak
// transport errors as anything other than result text.
package provider

import "context"

// DeliveryResult is the tagged outcome of one delivery attempt.
type DeliveryResult struct {
	Success   bool
	MessageID string
	Error     string
}

// Delivered builds a success result with an optional provider message id.
func Delivered(messageID string) DeliveryResult {
	return DeliveryResult{Success: true, MessageID: messageID}
}

// Undelivered builds a failure result carrying the transport error text.
func Undelivered(errText string) DeliveryResult {
	return DeliveryResult{Success: false, Error: errText}
}

// Gateway sends a rendered message through one of the delivery channels.
type Gateway interface {
	SendEmail(ctx context.Context, recipient, subject, body string) DeliveryResult
	SendSMS(ctx context.Context, recipient, body string) DeliveryResult
}

// CompositeGateway routes each channel to its transport client.
type CompositeGateway struct {
	email *SMTPEmailSender
	sms   *HTTPSMSSender
}

func NewCompositeGateway(email *SMTPEmailSender, sms *HTTPSMSSender) *CompositeGateway {
	return &CompositeGateway{email: email, sms: sms}
}

func (g *CompositeGateway) SendEmail(ctx context.Context, recipient, subject, body string) DeliveryResult {
	if g == nil || g.email == nil {
		return Undelivered("email gateway is not configured")
	}
	return g.email.Send(ctx, recipient, subject, body)
}

func (g *CompositeGateway) SendSMS(ctx context.Context, recipient, body string) DeliveryResult {
	if g == nil || g.sms == nil {
		return Undelivered("sms gateway is not configured")
	}
	return g.sms.Send(ctx, recipient, body)
}
