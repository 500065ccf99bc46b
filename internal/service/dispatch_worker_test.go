package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jobalert/notifier/internal/dedup"
	"github.com/jobalert/notifier/internal/domain"
	"github.com/jobalert/notifier/internal/provider"
	"github.com/jobalert/notifier/internal/queue"
	"github.com/jobalert/notifier/internal/repository"
	"go.uber.org/zap"
)

func TestDispatchWorkerProcessesPlainEmail(t *testing.T) {
	t.Parallel()

	statuses := newFakeStatusRepo()
	gateway := &fakeGateway{
		sendEmailFn: func(ctx context.Context, recipient, subject, body string) provider.DeliveryResult {
			if recipient != "user@example.com" {
				t.Errorf("recipient = %q, want user@example.com", recipient)
			}
			if subject != "Notification" {
				t.Errorf("subject = %q, want Notification", subject)
			}
			if body != "hi" {
				t.Errorf("body = %q, want hi", body)
			}
			return provider.Delivered("prov-1")
		},
	}

	worker := newTestWorker(t, statuses, gateway, &fakeListings{}, nil)

	body := envelopeBody(t, domain.Envelope{
		MessageID: "m1",
		Type:      domain.ChannelEmail,
		Recipient: "user@example.com",
		Message:   "hi",
	})
	if err := worker.processDelivery(context.Background(), body); err != nil {
		t.Fatalf("processDelivery() error = %v", err)
	}

	statuses.assertTransitions(t, "m1", domain.StatusProcessing, domain.StatusSent)
	if got := statuses.providerMessageID("m1"); got != "prov-1" {
		t.Fatalf("provider message id = %q, want prov-1", got)
	}
}

func TestDispatchWorkerEnrichesJobSearchSMS(t *testing.T) {
	t.Parallel()

	postings := []domain.JobPosting{
		{Title: "Backend Engineer", Company: "Acme", Location: "Remote", Date: "Today", Link: "#"},
		{Title: "Platform Engineer", Company: "Globex", Location: "Berlin", Date: "Yesterday", Link: "#"},
		{Title: "SRE", Company: "Initech", Location: "Remote", Date: "2 days ago", Link: "#"},
		{Title: "Staff Engineer", Company: "Umbrella", Location: "Remote", Date: "3 days ago", Link: "#"},
	}

	statuses := newFakeStatusRepo()
	var sentBody string
	gateway := &fakeGateway{
		sendSMSFn: func(ctx context.Context, recipient, body string) provider.DeliveryResult {
			sentBody = body
			return provider.Delivered("")
		},
	}
	listingsFake := &fakeListings{
		searchFn: func(ctx context.Context, query, location string) ([]domain.JobPosting, error) {
			if query != "Software Engineer" {
				t.Errorf("query = %q, want Software Engineer", query)
			}
			if location != "remote" {
				t.Errorf("location = %q, want remote", location)
			}
			return postings, nil
		},
	}

	worker := newTestWorker(t, statuses, gateway, listingsFake, nil)

	body := envelopeBody(t, domain.Envelope{
		MessageID: "m2",
		Type:      domain.ChannelSMS,
		Recipient: "+15550100",
		JobSearch: true,
		JobTitle:  "Software Engineer",
	})
	if err := worker.processDelivery(context.Background(), body); err != nil {
		t.Fatalf("processDelivery() error = %v", err)
	}

	statuses.assertTransitions(t, "m2", domain.StatusProcessing, domain.StatusSent)
	if !strings.HasPrefix(sentBody, "Latest Software Engineer Jobs:") {
		t.Fatalf("sms body should open with the jobs header, got %q", sentBody)
	}
	// Four postings in, at most three job lines out.
	if strings.Contains(sentBody, "Umbrella") {
		t.Fatalf("sms body should cap at three postings, got %q", sentBody)
	}
}

func TestDispatchWorkerEnrichesJobSearchEmail(t *testing.T) {
	t.Parallel()

	statuses := newFakeStatusRepo()
	var sentSubject, sentBody string
	gateway := &fakeGateway{
		sendEmailFn: func(ctx context.Context, recipient, subject, body string) provider.DeliveryResult {
			sentSubject = subject
			sentBody = body
			return provider.Delivered("")
		},
	}
	listingsFake := &fakeListings{
		searchFn: func(ctx context.Context, query, location string) ([]domain.JobPosting, error) {
			return []domain.JobPosting{
				{Title: "Data Engineer", Company: "Acme", Location: "Remote", Date: "Today", Link: "https://example.com/1"},
			}, nil
		},
	}

	worker := newTestWorker(t, statuses, gateway, listingsFake, nil)

	body := envelopeBody(t, domain.Envelope{
		MessageID: "m3",
		Type:      domain.ChannelEmail,
		Recipient: "user@example.com",
		JobSearch: true,
		JobTitle:  "Data Engineer",
	})
	if err := worker.processDelivery(context.Background(), body); err != nil {
		t.Fatalf("processDelivery() error = %v", err)
	}

	if sentSubject != "Latest Data Engineer Job Opportunities" {
		t.Fatalf("subject = %q", sentSubject)
	}
	if !strings.Contains(sentBody, "Data Engineer") || !strings.Contains(sentBody, "Acme") {
		t.Fatalf("email body missing posting fields: %q", sentBody)
	}
}

func TestDispatchWorkerListingsFailureSendsEmptyDigest(t *testing.T) {
	t.Parallel()

	statuses := newFakeStatusRepo()
	var sentBody string
	gateway := &fakeGateway{
		sendSMSFn: func(ctx context.Context, recipient, body string) provider.DeliveryResult {
			sentBody = body
			return provider.Delivered("")
		},
	}
	listingsFake := &fakeListings{
		searchFn: func(ctx context.Context, query, location string) ([]domain.JobPosting, error) {
			return nil, errors.New("upstream down")
		},
	}

	worker := newTestWorker(t, statuses, gateway, listingsFake, nil)

	body := envelopeBody(t, domain.Envelope{
		MessageID: "m4",
		Type:      domain.ChannelSMS,
		Recipient: "+15550100",
		JobSearch: true,
		JobTitle:  "Software Engineer",
	})
	if err := worker.processDelivery(context.Background(), body); err != nil {
		t.Fatalf("processDelivery() error = %v", err)
	}

	statuses.assertTransitions(t, "m4", domain.StatusProcessing, domain.StatusSent)
	if sentBody != "No new Software Engineer jobs found in the last 24 hours." {
		t.Fatalf("sms body = %q", sentBody)
	}
}

func TestDispatchWorkerGatewayFailureMarksFailed(t *testing.T) {
	t.Parallel()

	statuses := newFakeStatusRepo()
	gateway := &fakeGateway{
		sendSMSFn: func(ctx context.Context, recipient, body string) provider.DeliveryResult {
			return provider.Undelivered("throttled")
		},
	}
	guard := newMemGuard()

	worker := newTestWorker(t, statuses, gateway, &fakeListings{}, guard)

	body := envelopeBody(t, domain.Envelope{
		MessageID: "m5",
		Type:      domain.ChannelSMS,
		Recipient: "+15550100",
		Message:   "hi",
	})
	if err := worker.processDelivery(context.Background(), body); err != nil {
		t.Fatalf("processDelivery() error = %v", err)
	}

	statuses.assertTransitions(t, "m5", domain.StatusProcessing, domain.StatusFailed)
	if got := statuses.errorText("m5"); got != "throttled" {
		t.Fatalf("error text = %q, want throttled", got)
	}
	if !guard.marked("m5") {
		t.Fatal("a failed delivery reached a terminal status and should be marked delivered")
	}
}

func TestDispatchWorkerUnsupportedTypeNeverSends(t *testing.T) {
	t.Parallel()

	statuses := newFakeStatusRepo()
	gateway := &fakeGateway{
		sendEmailFn: func(ctx context.Context, recipient, subject, body string) provider.DeliveryResult {
			t.Error("gateway should not be invoked for an unsupported type")
			return provider.Delivered("")
		},
		sendSMSFn: func(ctx context.Context, recipient, body string) provider.DeliveryResult {
			t.Error("gateway should not be invoked for an unsupported type")
			return provider.Delivered("")
		},
	}

	worker := newTestWorker(t, statuses, gateway, &fakeListings{}, nil)

	body := []byte(`{"message_id":"m6","type":"fax","recipient":"x","message":"hi"}`)
	if err := worker.processDelivery(context.Background(), body); err != nil {
		t.Fatalf("processDelivery() error = %v", err)
	}

	statuses.assertTransitions(t, "m6", domain.StatusFailed)
	if got := statuses.errorText("m6"); !strings.Contains(got, "unsupported notification type") {
		t.Fatalf("error text = %q", got)
	}
}

func TestDispatchWorkerMalformedBodyWithoutIdentity(t *testing.T) {
	t.Parallel()

	statuses := newFakeStatusRepo()
	worker := newTestWorker(t, statuses, &fakeGateway{}, &fakeListings{}, nil)

	err := worker.processDelivery(context.Background(), []byte("{not json"))
	if !errors.Is(err, queue.ErrUnprocessable) {
		t.Fatalf("processDelivery() error = %v, want ErrUnprocessable", err)
	}
	if statuses.writes() != 0 {
		t.Fatalf("no status should be written for an unidentifiable payload, got %d writes", statuses.writes())
	}
}

func TestDispatchWorkerMalformedBodyWithRecoverableID(t *testing.T) {
	t.Parallel()

	statuses := newFakeStatusRepo()
	worker := newTestWorker(t, statuses, &fakeGateway{}, &fakeListings{}, nil)

	// Valid json, wrong shape: job_search should be a bool.
	body := []byte(`{"message_id":"m7","type":"email","recipient":"x","job_search":"yes"}`)
	if err := worker.processDelivery(context.Background(), body); err != nil {
		t.Fatalf("processDelivery() error = %v", err)
	}

	statuses.assertTransitions(t, "m7", domain.StatusFailed)
}

func TestDispatchWorkerSkipsDuplicateDelivery(t *testing.T) {
	t.Parallel()

	statuses := newFakeStatusRepo()
	sends := 0
	gateway := &fakeGateway{
		sendEmailFn: func(ctx context.Context, recipient, subject, body string) provider.DeliveryResult {
			sends++
			return provider.Delivered("")
		},
	}
	guard := &fakeGuard{
		alreadyFn: func(ctx context.Context, messageID string) (bool, error) {
			return true, nil
		},
	}

	worker := newTestWorker(t, statuses, gateway, &fakeListings{}, guard)

	body := envelopeBody(t, domain.Envelope{
		MessageID: "m8",
		Type:      domain.ChannelEmail,
		Recipient: "user@example.com",
		Message:   "hi",
	})
	if err := worker.processDelivery(context.Background(), body); err != nil {
		t.Fatalf("processDelivery() error = %v", err)
	}

	if sends != 0 {
		t.Fatalf("duplicate delivery should not reach the gateway, sends = %d", sends)
	}
	if statuses.writes() != 0 {
		t.Fatalf("duplicate delivery should not touch the status store, writes = %d", statuses.writes())
	}
}

func TestDispatchWorkerGuardFailureProcessesAnyway(t *testing.T) {
	t.Parallel()

	statuses := newFakeStatusRepo()
	gateway := &fakeGateway{
		sendEmailFn: func(ctx context.Context, recipient, subject, body string) provider.DeliveryResult {
			return provider.Delivered("")
		},
	}
	guard := &fakeGuard{
		alreadyFn: func(ctx context.Context, messageID string) (bool, error) {
			return false, errors.New("redis unavailable")
		},
	}

	worker := newTestWorker(t, statuses, gateway, &fakeListings{}, guard)

	body := envelopeBody(t, domain.Envelope{
		MessageID: "m9",
		Type:      domain.ChannelEmail,
		Recipient: "user@example.com",
		Message:   "hi",
	})
	if err := worker.processDelivery(context.Background(), body); err != nil {
		t.Fatalf("processDelivery() error = %v", err)
	}

	statuses.assertTransitions(t, "m9", domain.StatusProcessing, domain.StatusSent)
}

func TestDispatchWorkerStatusStoreFailureRequeues(t *testing.T) {
	t.Parallel()

	statuses := newFakeStatusRepo()
	statuses.updateErr = errors.New("database down")

	guard := newMemGuard()

	worker := newTestWorker(t, statuses, &fakeGateway{}, &fakeListings{}, guard)

	body := envelopeBody(t, domain.Envelope{
		MessageID: "m10",
		Type:      domain.ChannelEmail,
		Recipient: "user@example.com",
		Message:   "hi",
	})
	err := worker.processDelivery(context.Background(), body)
	if err == nil {
		t.Fatal("expected error when the status store is unavailable")
	}
	if errors.Is(err, queue.ErrUnprocessable) {
		t.Fatal("status store failures must requeue, not dead-letter")
	}
	if guard.marked("m10") {
		t.Fatal("a delivery without a terminal status write must not be marked delivered")
	}
}

// An attempt interrupted before its terminal status write leaves no delivery
// mark, so the broker's redelivery must run the pipeline again instead of
// being swallowed as a duplicate.
func TestDispatchWorkerRedeliveryAfterFailedAttemptIsReprocessed(t *testing.T) {
	t.Parallel()

	statuses := newFakeStatusRepo()
	statuses.updateErr = errors.New("database down")

	sends := 0
	gateway := &fakeGateway{
		sendEmailFn: func(ctx context.Context, recipient, subject, body string) provider.DeliveryResult {
			sends++
			return provider.Delivered("prov-1")
		},
	}
	guard := newMemGuard()

	worker := newTestWorker(t, statuses, gateway, &fakeListings{}, guard)

	body := envelopeBody(t, domain.Envelope{
		MessageID: "m-interrupted",
		Type:      domain.ChannelEmail,
		Recipient: "user@example.com",
		Message:   "hi",
	})

	if err := worker.processDelivery(context.Background(), body); err == nil {
		t.Fatal("expected error while the status store is unavailable")
	}
	if guard.marked("m-interrupted") {
		t.Fatal("interrupted attempt must not leave a delivery mark")
	}

	statuses.updateErr = nil
	if err := worker.processDelivery(context.Background(), body); err != nil {
		t.Fatalf("processDelivery() on redelivery error = %v", err)
	}
	if sends == 0 {
		t.Fatal("redelivery should reach the gateway")
	}
	statuses.assertTransitions(t, "m-interrupted", domain.StatusProcessing, domain.StatusSent)
	if !guard.marked("m-interrupted") {
		t.Fatal("completed redelivery should be marked delivered")
	}

	before := sends
	if err := worker.processDelivery(context.Background(), body); err != nil {
		t.Fatalf("processDelivery() on duplicate error = %v", err)
	}
	if sends != before {
		t.Fatal("duplicate of a completed delivery must not reach the gateway")
	}
}

func TestDispatchWorkerStartFansOutAcrossQueues(t *testing.T) {
	t.Parallel()

	statuses := newFakeStatusRepo()
	consumed := make(chan string, 8)
	consumer := &fakeConsumer{
		consumeFn: func(ctx context.Context, queueName string, handler queue.MessageHandler) error {
			consumed <- queueName
			<-ctx.Done()
			return nil
		},
	}

	worker, err := NewDispatchWorker(statuses, consumer, &fakeGateway{}, &fakeListings{}, nil, 4, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatchWorker() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.Start(ctx)
	}()

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		seen[<-consumed]++
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if seen["email"] != 2 || seen["sms"] != 2 {
		t.Fatalf("queues should be consumed round-robin, got %v", seen)
	}
}

func TestNewDispatchWorkerValidation(t *testing.T) {
	t.Parallel()

	statuses := newFakeStatusRepo()
	consumer := &fakeConsumer{}
	gateway := &fakeGateway{}
	listingsFake := &fakeListings{}

	if _, err := NewDispatchWorker(nil, consumer, gateway, listingsFake, nil, 1, nil); err == nil {
		t.Fatal("expected error for nil status repository")
	}
	if _, err := NewDispatchWorker(statuses, nil, gateway, listingsFake, nil, 1, nil); err == nil {
		t.Fatal("expected error for nil consumer")
	}
	if _, err := NewDispatchWorker(statuses, consumer, nil, listingsFake, nil, 1, nil); err == nil {
		t.Fatal("expected error for nil gateway")
	}
	if _, err := NewDispatchWorker(statuses, consumer, gateway, nil, nil, 1, nil); err == nil {
		t.Fatal("expected error for nil listings provider")
	}

	worker, err := NewDispatchWorker(statuses, consumer, gateway, listingsFake, nil, 0, nil)
	if err != nil {
		t.Fatalf("NewDispatchWorker() error = %v", err)
	}
	if worker.concurrency != minWorkerConcurrency {
		t.Fatalf("concurrency = %d, want %d", worker.concurrency, minWorkerConcurrency)
	}
}

func newTestWorker(
	t *testing.T,
	statuses repository.StatusRepository,
	gateway provider.Gateway,
	listingsFake *fakeListings,
	guard dedup.Guard,
) *DispatchWorker {
	t.Helper()

	worker, err := NewDispatchWorker(statuses, &fakeConsumer{}, gateway, listingsFake, guard, 1, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatchWorker() error = %v", err)
	}
	return worker
}

func envelopeBody(t *testing.T, env domain.Envelope) []byte {
	t.Helper()

	body, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return body
}

type fakeStatusRepo struct {
	mu          sync.Mutex
	records     map[string]*domain.StatusRecord
	transitions map[string][]domain.Status
	errors      map[string]string
	providerIDs map[string]string
	writeCount  int

	createErr error
	updateErr error
}

func newFakeStatusRepo() *fakeStatusRepo {
	return &fakeStatusRepo{
		records:     map[string]*domain.StatusRecord{},
		transitions: map[string][]domain.Status{},
		errors:      map[string]string{},
		providerIDs: map[string]string{},
	}
}

func (f *fakeStatusRepo) Create(ctx context.Context, record *domain.StatusRecord) error {
	if f.createErr != nil {
		return f.createErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *record
	f.records[record.MessageID] = &copied
	f.transitions[record.MessageID] = append(f.transitions[record.MessageID], record.Status)
	f.writeCount++
	return nil
}

func (f *fakeStatusRepo) GetByID(ctx context.Context, messageID string) (*domain.StatusRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[messageID]
	if !ok {
		return nil, fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
	}
	copied := *record
	return &copied, nil
}

func (f *fakeStatusRepo) List(ctx context.Context, params repository.ListParams) ([]domain.StatusRecord, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.StatusRecord, 0, len(f.records))
	for _, record := range f.records {
		out = append(out, *record)
	}
	return out, int64(len(out)), nil
}

func (f *fakeStatusRepo) UpdateStatus(ctx context.Context, messageID string, status domain.Status, errText string) error {
	if f.updateErr != nil {
		return f.updateErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[messageID]
	if !ok {
		record = &domain.StatusRecord{MessageID: messageID}
		f.records[messageID] = record
	}
	record.Status = status
	if errText != "" {
		f.errors[messageID] = errText
	} else {
		delete(f.errors, messageID)
	}
	f.transitions[messageID] = append(f.transitions[messageID], status)
	f.writeCount++
	return nil
}

func (f *fakeStatusRepo) SetProviderMessageID(ctx context.Context, messageID string, providerMsgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providerIDs[messageID] = providerMsgID
	return nil
}

func (f *fakeStatusRepo) assertTransitions(t *testing.T, messageID string, want ...domain.Status) {
	t.Helper()

	f.mu.Lock()
	got := append([]domain.Status(nil), f.transitions[messageID]...)
	f.mu.Unlock()

	if len(got) != len(want) {
		t.Fatalf("transitions for %s = %v, want %v", messageID, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions for %s = %v, want %v", messageID, got, want)
		}
	}
}

func (f *fakeStatusRepo) errorText(messageID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors[messageID]
}

func (f *fakeStatusRepo) providerMessageID(messageID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providerIDs[messageID]
}

func (f *fakeStatusRepo) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeCount
}

type fakeGateway struct {
	sendEmailFn func(ctx context.Context, recipient, subject, body string) provider.DeliveryResult
	sendSMSFn   func(ctx context.Context, recipient, body string) provider.DeliveryResult
}

func (f *fakeGateway) SendEmail(ctx context.Context, recipient, subject, body string) provider.DeliveryResult {
	if f.sendEmailFn != nil {
		return f.sendEmailFn(ctx, recipient, subject, body)
	}
	return provider.Delivered("")
}

func (f *fakeGateway) SendSMS(ctx context.Context, recipient, body string) provider.DeliveryResult {
	if f.sendSMSFn != nil {
		return f.sendSMSFn(ctx, recipient, body)
	}
	return provider.Delivered("")
}

type fakeListings struct {
	searchFn func(ctx context.Context, query, location string) ([]domain.JobPosting, error)
}

func (f *fakeListings) Search(ctx context.Context, query, location string) ([]domain.JobPosting, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, query, location)
	}
	return nil, nil
}

type fakeGuard struct {
	alreadyFn func(ctx context.Context, messageID string) (bool, error)
	markFn    func(ctx context.Context, messageID string) error
}

func (f *fakeGuard) AlreadyDelivered(ctx context.Context, messageID string) (bool, error) {
	if f.alreadyFn != nil {
		return f.alreadyFn(ctx, messageID)
	}
	return false, nil
}

func (f *fakeGuard) MarkDelivered(ctx context.Context, messageID string) error {
	if f.markFn != nil {
		return f.markFn(ctx, messageID)
	}
	return nil
}

// memGuard mirrors the real guard's semantics: an id counts as delivered
// only once it was explicitly marked.
type memGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemGuard() *memGuard {
	return &memGuard{seen: map[string]bool{}}
}

func (g *memGuard) AlreadyDelivered(_ context.Context, messageID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen[messageID], nil
}

func (g *memGuard) MarkDelivered(_ context.Context, messageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[messageID] = true
	return nil
}

func (g *memGuard) marked(messageID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen[messageID]
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	return nil
}

func (f *fakeConsumer) Close() error {
	return nil
}
