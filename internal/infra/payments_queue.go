package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"payment-stats/internal/payments/entities"
	"payment-stats/internal/payments/repository"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	PaymentStream = "payment_stream"
	PaymentGroup  = "payment_group"

	payloadField = "payload"
)

const (
	defaultJobChanBuf = 1000
	defaultRetryBuf   = 1024
	readCount         = 100
	maxAttempts       = 5
	baseRetryDelay    = 100 * time.Millisecond

	defaultReclaimIdle = 30 * time.Second
	reclaimInterval    = 10 * time.Second
)

type job struct {
	messageID string
	payment   entities.Payment
	attempts  int
}

// PaymentsQueue moves payments from the Redis stream into the store.
// Entries are acknowledged once saved. An entry whose save keeps failing
// stays pending after maxAttempts, and the reclaimer hands it to the
// workers again once it has been idle for reclaimIdle.
type PaymentsQueue struct {
	redisClient *redis.Client
	store       repository.Payment

	consumers   int
	block       time.Duration
	reclaimIdle time.Duration

	jobChan   chan job
	retryChan chan job

	ack func(ctx context.Context, messageID string)
	wg  sync.WaitGroup
}

func NewPaymentQueue(redisClient *redis.Client, store repository.Payment, consumers int, block time.Duration) *PaymentsQueue {
	q := &PaymentsQueue{
		redisClient: redisClient,
		store:       store,
		consumers:   consumers,
		block:       block,
		reclaimIdle: defaultReclaimIdle,
		jobChan:     make(chan job, defaultJobChanBuf),
		retryChan:   make(chan job, defaultRetryBuf),
	}
	q.ack = q.ackMessage
	return q
}

func (q *PaymentsQueue) Enqueue(ctx context.Context, payment entities.Payment) error {
	values, err := encodeEntry(payment)
	if err != nil {
		return err
	}

	err = q.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: PaymentStream,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue payment %s: %w", payment.ID, err)
	}
	return nil
}

// EnsureGroup creates the stream and its consumer group if missing.
func (q *PaymentsQueue) EnsureGroup(ctx context.Context) error {
	err := q.redisClient.XGroupCreateMkStream(ctx, PaymentStream, PaymentGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create group %s: %w", PaymentGroup, err)
	}
	return nil
}

// ClearStream drops every entry of the stream, keeping the group.
func (q *PaymentsQueue) ClearStream(ctx context.Context) error {
	if err := q.redisClient.XTrimMaxLen(ctx, PaymentStream, 0).Err(); err != nil {
		return fmt.Errorf("failed to clear stream %s: %w", PaymentStream, err)
	}
	log.Printf("[INFO] Cleared stream %s", PaymentStream)
	return nil
}

// Start launches the stream consumers and the save workers. They run until
// ctx is cancelled; Wait blocks until all of them have returned.
func (q *PaymentsQueue) Start(ctx context.Context) error {
	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to read hostname: %w", err)
	}

	numWorkers := runtime.NumCPU()
	log.Printf("[INFO] Starting PaymentsQueue with %d consumers and %d workers", q.consumers, numWorkers)

	for i := 1; i <= numWorkers; i++ {
		q.wg.Add(1)
		go q.startWorker(ctx, i)
	}
	for i := 1; i <= q.consumers; i++ {
		q.wg.Add(1)
		go q.startConsumer(ctx, fmt.Sprintf("consumer-%d-%s", i, hostname))
	}

	q.wg.Add(1)
	go q.startReclaimer(ctx, "reclaimer-"+hostname)
	return nil
}

func (q *PaymentsQueue) Wait() {
	q.wg.Wait()
}

func (q *PaymentsQueue) startConsumer(ctx context.Context, consumerName string) {
	defer q.wg.Done()
	log.Printf("[%s] started", consumerName)

	for {
		entries, err := q.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    PaymentGroup,
			Consumer: consumerName,
			Streams:  []string{PaymentStream, ">"},
			Block:    q.block,
			Count:    readCount,
		}).Result()

		if ctx.Err() != nil {
			log.Printf("[%s] ctx done, exiting", consumerName)
			return
		}
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Printf("[WARN] [%s] read failed: %v", consumerName, err)
				sleep(ctx, baseRetryDelay)
			}
			continue
		}

		for _, entry := range entries {
			for _, msg := range entry.Messages {
				if !q.dispatch(ctx, msg) {
					return
				}
			}
		}
	}
}

// startReclaimer periodically takes over entries left pending by failed
// saves or by consumers that died before acknowledging.
func (q *PaymentsQueue) startReclaimer(ctx context.Context, consumerName string) {
	defer q.wg.Done()

	ticker := time.NewTicker(reclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[%s] ctx done, exiting", consumerName)
			return
		case <-ticker.C:
			if err := q.reclaimPending(ctx, consumerName); err != nil && ctx.Err() == nil {
				log.Printf("[WARN] [%s] reclaim failed: %v", consumerName, err)
			}
		}
	}
}

func (q *PaymentsQueue) reclaimPending(ctx context.Context, consumerName string) error {
	start := "0-0"
	for {
		msgs, next, err := q.redisClient.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   PaymentStream,
			Group:    PaymentGroup,
			Consumer: consumerName,
			MinIdle:  q.reclaimIdle,
			Start:    start,
			Count:    readCount,
		}).Result()
		if err != nil {
			return err
		}

		if len(msgs) > 0 {
			log.Printf("[INFO] [%s] reclaimed %d pending entries", consumerName, len(msgs))
		}
		for _, msg := range msgs {
			if !q.dispatch(ctx, msg) {
				return ctx.Err()
			}
		}

		if next == "0-0" || next == "" {
			return nil
		}
		start = next
	}
}

// dispatch hands a stream entry to the workers. Malformed entries are
// acknowledged and dropped. It reports false when ctx ended first.
func (q *PaymentsQueue) dispatch(ctx context.Context, msg redis.XMessage) bool {
	payment, err := decodeEntry(msg.Values)
	if err != nil {
		log.Printf("[ERROR] dropping malformed entry %s: %v", msg.ID, err)
		q.ack(ctx, msg.ID)
		return true
	}

	select {
	case q.jobChan <- job{messageID: msg.ID, payment: payment}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (q *PaymentsQueue) startWorker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[worker %d] ctx done, exiting", id)
			return
		case j := <-q.jobChan:
			q.process(ctx, j)
		case j := <-q.retryChan:
			q.process(ctx, j)
		}
	}
}

func (q *PaymentsQueue) process(ctx context.Context, j job) {
	if err := q.store.Save(ctx, j.payment); err != nil {
		log.Printf("[WARN] save payment failed (attempt %d) id=%s err=%v", j.attempts+1, j.payment.ID, err)
		q.enqueueRetry(ctx, j)
		return
	}
	q.ack(ctx, j.messageID)
}

// enqueueRetry schedules another attempt after baseRetryDelay without
// blocking the calling worker.
func (q *PaymentsQueue) enqueueRetry(ctx context.Context, j job) {
	j.attempts++
	if j.attempts >= maxAttempts {
		log.Printf("[ERROR] max attempts reached for payment %s, entry %s left for the reclaimer", j.payment.ID, j.messageID)
		return
	}

	go func() {
		if !sleep(ctx, baseRetryDelay) {
			return
		}
		select {
		case q.retryChan <- j:
		case <-ctx.Done():
		}
	}()
}

func (q *PaymentsQueue) ackMessage(ctx context.Context, messageID string) {
	if err := q.redisClient.XAck(ctx, PaymentStream, PaymentGroup, messageID).Err(); err != nil {
		log.Printf("[WARN] ack %s failed: %v", messageID, err)
	}
}

// sleep reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func encodeEntry(payment entities.Payment) (map[string]interface{}, error) {
	payload, err := json.Marshal(payment)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment %s: %w", payment.ID, err)
	}
	return map[string]interface{}{payloadField: string(payload)}, nil
}

func decodeEntry(values map[string]interface{}) (entities.Payment, error) {
	var p entities.Payment

	raw, ok := values[payloadField]
	if !ok {
		return p, fmt.Errorf("missing %q field", payloadField)
	}
	payload, ok := raw.(string)
	if !ok {
		return p, fmt.Errorf("%q field is %T, not a string", payloadField, raw)
	}
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return p, fmt.Errorf("invalid payment payload: %w", err)
	}
	if p.ID == "" {
		return p, errors.New("payment without id")
	}
	return p, nil
}
