package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultSMSTimeout = 10 * time.Second

// smsMessageType is the fixed classification attached to every outbound SMS.
const smsMessageType = "transactional"

type smsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
	Type string `json:"type"`
}

type smsResponse struct {
	MessageID string `json:"message_id"`
}

// HTTPSMSSender delivers SMS through a JSON-over-HTTP provider endpoint.
type HTTPSMSSender struct {
	client   *resty.Client
	endpoint string
	token    string
}

func NewHTTPSMSSender(endpoint, token string) (*HTTPSMSSender, error) {
	client := resty.New()
	client.SetTimeout(defaultSMSTimeout)
	client.SetRetryCount(0)

	return NewHTTPSMSSenderWithClient(endpoint, token, client)
}

func NewHTTPSMSSenderWithClient(endpoint, token string, client *resty.Client) (*HTTPSMSSender, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("sms endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid sms endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSMSTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPSMSSender{
		client:   client,
		endpoint: trimmedEndpoint,
		token:    strings.TrimSpace(token),
	}, nil
}

func (s *HTTPSMSSender) Send(ctx context.Context, recipient, body string) DeliveryResult {
	if s == nil || s.client == nil {
		return Undelivered("sms sender is not initialized")
	}
	if strings.TrimSpace(recipient) == "" {
		return Undelivered("sms recipient is required")
	}

	req := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(smsRequest{
			To:   recipient,
			Body: body,
			Type: smsMessageType,
		}).
		SetResult(&smsResponse{})
	if s.token != "" {
		req.SetHeader("Authorization", "Bearer "+s.token)
	}

	response, err := req.Post(s.endpoint)
	if err != nil {
		return Undelivered(fmt.Sprintf("sms provider request failed: %v", err))
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return Undelivered(providerErrorMessage(statusCode, strings.TrimSpace(response.String())))
	}

	return Delivered(smsMessageID(response))
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("sms provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func smsMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	if parsed, ok := response.Result().(*smsResponse); ok && strings.TrimSpace(parsed.MessageID) != "" {
		return parsed.MessageID
	}

	for _, key := range []string{"X-Message-ID", "X-Message-Id", "X-Request-ID", "X-Request-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
