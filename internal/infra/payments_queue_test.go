package infra

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-stats/internal/payments/entities"
)

type flakyStore struct {
	mu       sync.Mutex
	failures int
	attempts int
	saved    []entities.Payment
}

func (s *flakyStore) FindAll(ctx context.Context) ([]entities.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.Payment(nil), s.saved...), nil
}

func (s *flakyStore) Save(ctx context.Context, p entities.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failures != 0 {
		s.failures--
		return errors.New("store unavailable")
	}
	s.saved = append(s.saved, p)
	return nil
}

func (s *flakyStore) Purge(ctx context.Context) error {
	return nil
}

func (s *flakyStore) counts() (attempts, saved int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts, len(s.saved)
}

type ackRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *ackRecorder) ack(ctx context.Context, messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, messageID)
}

func (r *ackRecorder) acked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func testPayment() entities.Payment {
	return entities.Payment{
		ID:          "p1",
		PaymentDate: time.Date(2024, time.June, 2, 8, 0, 0, 0, time.FixedZone("CEST", 2*60*60)),
		User:        entities.User{FirstName: "Alice", LastName: "Nowak", Email: "alice@example.com"},
		Items: []entities.PaymentItem{{
			Name:         "Book",
			RegularPrice: decimal.RequireFromString("12.00"),
			FinalPrice:   decimal.RequireFromString("10.00"),
		}},
	}
}

// newTestQueue runs a single save worker without touching Redis.
func newTestQueue(t *testing.T, store *flakyStore) (*PaymentsQueue, *ackRecorder, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	q := NewPaymentQueue(nil, store, 1, time.Second)
	acks := &ackRecorder{}
	q.ack = acks.ack

	q.wg.Add(1)
	go q.startWorker(ctx, 1)
	t.Cleanup(func() {
		cancel()
		q.Wait()
	})
	return q, acks, ctx
}

func TestEntryRoundTrip(t *testing.T) {
	want := testPayment()

	values, err := encodeEntry(want)
	require.NoError(t, err)
	require.Contains(t, values, payloadField)

	got, err := decodeEntry(values)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
	assert.True(t, want.PaymentDate.Equal(got.PaymentDate))
}

func TestDecodeEntryErrors(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]interface{}
		wantErr string
	}{
		{"missing payload", map[string]interface{}{"other": "x"}, "missing"},
		{"not a string", map[string]interface{}{payloadField: 42}, "not a string"},
		{"bad json", map[string]interface{}{payloadField: "{"}, "invalid payment payload"},
		{"bad price", map[string]interface{}{payloadField: `{"id":"p1","items":[{"finalPrice":"free"}]}`}, "invalid payment payload"},
		{"no id", map[string]interface{}{payloadField: `{"paymentDate":"2024-06-02T08:00:00Z"}`}, "without id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeEntry(tt.values)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProcessAcksAfterSave(t *testing.T) {
	store := &flakyStore{}
	q, acks, ctx := newTestQueue(t, store)

	q.jobChan <- job{messageID: "1-0", payment: testPayment()}

	assert.Eventually(t, func() bool {
		return len(acks.acked()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"1-0"}, acks.acked())

	saved, err := store.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "p1", saved[0].ID)
}

func TestProcessRetriesFailedSaves(t *testing.T) {
	store := &flakyStore{failures: 2}
	q, acks, ctx := newTestQueue(t, store)

	q.process(ctx, job{messageID: "2-0", payment: testPayment()})

	assert.Eventually(t, func() bool {
		return len(acks.acked()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	attempts, saved := store.counts()
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 1, saved)
	assert.Equal(t, []string{"2-0"}, acks.acked())
}

func TestProcessGivesUpAfterMaxAttempts(t *testing.T) {
	store := &flakyStore{failures: -1}
	q, acks, ctx := newTestQueue(t, store)

	q.process(ctx, job{messageID: "3-0", payment: testPayment()})

	assert.Eventually(t, func() bool {
		attempts, _ := store.counts()
		return attempts == maxAttempts
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(3 * baseRetryDelay)
	attempts, saved := store.counts()
	assert.Equal(t, maxAttempts, attempts)
	assert.Zero(t, saved)
	assert.Empty(t, acks.acked())
}

func TestEnqueueRetryStopsWithContext(t *testing.T) {
	store := &flakyStore{}
	q := NewPaymentQueue(nil, store, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.enqueueRetry(ctx, job{messageID: "4-0", payment: testPayment()})

	time.Sleep(2 * baseRetryDelay)
	assert.Empty(t, q.retryChan)
}

func setupRedisQueue(t *testing.T, store *flakyStore) (*PaymentsQueue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	q := NewPaymentQueue(rdb, store, 2, 50*time.Millisecond)
	require.NoError(t, q.EnsureGroup(context.Background()))
	return q, rdb
}

func pendingCount(t *testing.T, rdb *redis.Client) int {
	t.Helper()
	pending, err := rdb.XPendingExt(context.Background(), &redis.XPendingExtArgs{
		Stream: PaymentStream,
		Group:  PaymentGroup,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	require.NoError(t, err)
	return len(pending)
}

func TestEnsureGroupIsIdempotent(t *testing.T) {
	q, _ := setupRedisQueue(t, &flakyStore{})
	assert.NoError(t, q.EnsureGroup(context.Background()))
}

func TestQueueSavesAndAcksStreamEntries(t *testing.T) {
	store := &flakyStore{}
	q, rdb := setupRedisQueue(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		q.Wait()
	})

	require.NoError(t, q.Enqueue(ctx, testPayment()))
	require.NoError(t, q.Start(ctx))

	assert.Eventually(t, func() bool {
		_, saved := store.counts()
		return saved == 1
	}, 2*time.Second, 10*time.Millisecond)

	saved, err := store.FindAll(ctx)
	require.NoError(t, err)
	assert.True(t, testPayment().Equal(saved[0]))

	assert.Eventually(t, func() bool {
		return pendingCount(t, rdb) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClearStream(t *testing.T) {
	q, rdb := setupRedisQueue(t, &flakyStore{})
	ctx := context.Background()

	for _, id := range []string{"p1", "p2"} {
		p := testPayment()
		p.ID = id
		require.NoError(t, q.Enqueue(ctx, p))
	}
	length, err := rdb.XLen(ctx, PaymentStream).Result()
	require.NoError(t, err)
	require.EqualValues(t, 2, length)

	require.NoError(t, q.ClearStream(ctx))

	length, err = rdb.XLen(ctx, PaymentStream).Result()
	require.NoError(t, err)
	assert.Zero(t, length)
	assert.NoError(t, q.EnsureGroup(ctx))
}

func TestReclaimPendingTakesOverAbandonedEntries(t *testing.T) {
	store := &flakyStore{}
	q, rdb := setupRedisQueue(t, store)
	q.reclaimIdle = 0

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		q.Wait()
	})

	require.NoError(t, q.Enqueue(ctx, testPayment()))
	require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: PaymentStream,
		Values: map[string]interface{}{"other": "x"},
	}).Err())

	// a consumer reads both entries and dies before acknowledging them
	_, err := rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    PaymentGroup,
		Consumer: "crashed",
		Streams:  []string{PaymentStream, ">"},
		Count:    10,
		Block:    -1,
	}).Result()
	require.NoError(t, err)
	require.Equal(t, 2, pendingCount(t, rdb))

	q.wg.Add(1)
	go q.startWorker(ctx, 1)

	require.NoError(t, q.reclaimPending(ctx, "reclaimer"))

	assert.Eventually(t, func() bool {
		return pendingCount(t, rdb) == 0
	}, 2*time.Second, 10*time.Millisecond)

	attempts, saved := store.counts()
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, saved)
}
