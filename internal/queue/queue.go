package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jobalert/notifier/internal/domain"
)

// ErrUnprocessable signals that a delivery can never be handled and should
// be parked on the dead-letter queue instead of requeued.
var ErrUnprocessable = errors.New("unprocessable delivery")

// Publisher publishes notification envelopes to a channel work queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, env domain.Envelope) error
	Close() error
}

// MessageHandler handles one consumed delivery body. The handler owns
// payload decoding; returning nil acks, ErrUnprocessable dead-letters,
// any other error requeues.
type MessageHandler func(ctx context.Context, body []byte) error

// Consumer consumes envelope payloads from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var supportedChannels = []domain.Channel{
	domain.ChannelEmail,
	domain.ChannelSMS,
}

// QueueName returns the channel work queue name, e.g. email.
func QueueName(channel domain.Channel) string {
	return strings.ToLower(channel.String())
}

// DLQName returns the dead-letter queue name for a channel, e.g. dlq.email.
func DLQName(channel domain.Channel) string {
	return fmt.Sprintf("dlq.%s", QueueName(channel))
}

// WorkQueueNames returns all channel work queues.
func WorkQueueNames() []string {
	queues := make([]string, 0, len(supportedChannels))
	for _, channel := range supportedChannels {
		queues = append(queues, QueueName(channel))
	}
	return queues
}

// DLQNames returns all dead-letter queues.
func DLQNames() []string {
	queues := make([]string, 0, len(supportedChannels))
	for _, channel := range supportedChannels {
		queues = append(queues, DLQName(channel))
	}
	return queues
}
