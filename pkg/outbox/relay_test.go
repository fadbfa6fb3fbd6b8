package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/corebank/pkg/domain"
	"github.com/plaenen/corebank/pkg/idgen"
	"github.com/plaenen/corebank/pkg/outbox"
	"github.com/plaenen/corebank/pkg/store"
	"github.com/plaenen/corebank/pkg/store/sqlite"
)

var testClock = time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)

// captureSink records published events and can be told to fail.
type captureSink struct {
	mu        sync.Mutex
	published []domain.Event
	failWith  error
}

func (s *captureSink) Publish(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.published = append(s.published, event)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.published...)
}

func (s *captureSink) setFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func newTestOutbox(t *testing.T) store.OutboxStore {
	t.Helper()
	st, err := sqlite.New(sqlite.WithMemoryDatabase(), sqlite.WithWALMode(false))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st.Outbox()
}

func appendEvent(t *testing.T, ob store.OutboxStore, event domain.Event) *store.OutboxMessage {
	t.Helper()
	msg, err := store.NewOutboxMessage(event)
	require.NoError(t, err)
	require.NoError(t, ob.Append(context.Background(), []*store.OutboxMessage{msg}))
	return msg
}

func insufficientFunds(at time.Time) domain.InsufficientFunds {
	return domain.InsufficientFunds{
		EventModel:    domain.NewEventModel(at),
		AccountNumber: "1234567890",
		Requested:     domain.MustMoney("100", "USD"),
		Balance:       domain.MustMoney("10", "USD"),
		Operation:     "Transfer",
	}
}

func TestRelay_PublishesInOccurrenceOrder(t *testing.T) {
	ob := newTestOutbox(t)
	sink := &captureSink{}
	relay := outbox.NewRelay(ob, sink, outbox.WithClock(func() time.Time { return testClock }))

	later := insufficientFunds(testClock.Add(2 * time.Hour))
	earlier := insufficientFunds(testClock.Add(1 * time.Hour))
	appendEvent(t, ob, later)
	appendEvent(t, ob, earlier)

	published, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, published)

	events := sink.events()
	require.Len(t, events, 2)
	assert.Equal(t, earlier.EventID(), events[0].EventID())
	assert.Equal(t, later.EventID(), events[1].EventID())

	// Nothing left to do.
	published, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)
}

func TestRelay_RetriesUntilDeadLetter(t *testing.T) {
	ob := newTestOutbox(t)
	sink := &captureSink{}
	sink.setFailure(errors.New("broker down"))
	relay := outbox.NewRelay(ob, sink,
		outbox.WithMaxRetries(3),
		outbox.WithClock(func() time.Time { return testClock }))

	appendEvent(t, ob, insufficientFunds(testClock))

	for attempt := 1; attempt <= 3; attempt++ {
		published, err := relay.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, published, "attempt %d", attempt)
	}

	// Budget exhausted: the message no longer appears in a pass.
	published, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)

	dead, err := relay.DeadLetters(context.Background())
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 3, dead[0].RetryCount)
	assert.Contains(t, dead[0].LastError, "broker down")

	// After the operator fixes the broker and resets, delivery succeeds.
	sink.setFailure(nil)
	require.NoError(t, relay.ResetDeadLetter(context.Background(), dead[0].ID))

	published, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	assert.Len(t, sink.events(), 1)
}

func TestRelay_FailingMessageDoesNotBlockOthers(t *testing.T) {
	ob := newTestOutbox(t)

	// First message fails to decode-publish via a sink error on its type,
	// so use a sink that fails only for the first event id.
	bad := insufficientFunds(testClock)
	good := insufficientFunds(testClock.Add(time.Minute))

	sink := &selectiveSink{failID: bad.EventID()}
	relay := outbox.NewRelay(ob, sink, outbox.WithClock(func() time.Time { return testClock }))

	appendEvent(t, ob, bad)
	appendEvent(t, ob, good)

	published, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	require.Len(t, sink.published, 1)
	assert.Equal(t, good.EventID(), sink.published[0].EventID())
}

type selectiveSink struct {
	failID    string
	published []domain.Event
}

func (s *selectiveSink) Publish(ctx context.Context, event domain.Event) error {
	if event.EventID() == s.failID {
		return errors.New("poison message")
	}
	s.published = append(s.published, event)
	return nil
}

func (s *selectiveSink) Close() error { return nil }

func TestRelay_UnknownEventTypeIsSkippedNotRetried(t *testing.T) {
	ob := newTestOutbox(t)
	sink := &captureSink{}
	relay := outbox.NewRelay(ob, sink, outbox.WithClock(func() time.Time { return testClock }))

	unknown := &store.OutboxMessage{
		ID:         idgen.NewSortableID(),
		Type:       "corebank.Retired",
		Content:    []byte(`{"event_id":"x"}`),
		OccurredOn: testClock,
	}
	require.NoError(t, ob.Append(context.Background(), []*store.OutboxMessage{unknown}))

	_, err := relay.RunOnce(context.Background())
	require.NoError(t, err)

	// The row is marked processed so it never clogs the queue.
	pending, err := ob.PendingBatch(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Empty(t, sink.events())
}

func TestRelay_BatchSizeLimitsOnePass(t *testing.T) {
	ob := newTestOutbox(t)
	sink := &captureSink{}
	relay := outbox.NewRelay(ob, sink,
		outbox.WithBatchSize(2),
		outbox.WithClock(func() time.Time { return testClock }))

	for i := 0; i < 5; i++ {
		appendEvent(t, ob, insufficientFunds(testClock.Add(time.Duration(i)*time.Minute)))
	}

	published, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, published)

	published, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, published)

	published, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)
}

func TestRelay_StartStop(t *testing.T) {
	ob := newTestOutbox(t)
	sink := &captureSink{}
	relay := outbox.NewRelay(ob, sink, outbox.WithPollInterval(10*time.Millisecond))

	require.NoError(t, relay.Start(context.Background()))

	appendEvent(t, ob, insufficientFunds(testClock))

	require.Eventually(t, func() bool {
		return len(sink.events()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, relay.Stop(ctx))
}
