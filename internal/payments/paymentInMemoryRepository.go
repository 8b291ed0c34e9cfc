package payments

import (
	"cmp"
	"context"
	"hash/fnv"
	"payment-stats/internal/payments/entities"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
)

const (
	shardCount = 256

	// below this many records FindAll walks the shards without goroutines
	parallelScanThreshold = 10_000
)

type storedPayment struct {
	seq     uint64
	payment entities.Payment
}

type paymentShard struct {
	sync.RWMutex
	store map[string]storedPayment
}

// InMemoryPaymentDB keeps payments in fnv-hashed shards keyed by payment ID.
// FindAll returns them in the order they were first saved.
type InMemoryPaymentDB struct {
	shards [shardCount]*paymentShard
	seq    atomic.Uint64
}

func NewInMemoryPaymentDB() *InMemoryPaymentDB {
	db := &InMemoryPaymentDB{}
	for i := 0; i < shardCount; i++ {
		db.shards[i] = &paymentShard{
			store: make(map[string]storedPayment, 64),
		}
	}
	return db
}

func (db *InMemoryPaymentDB) getShard(key string) *paymentShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return db.shards[h.Sum32()%shardCount]
}

// Save inserts the payment or replaces the one with the same ID, keeping
// its first-saved position.
func (db *InMemoryPaymentDB) Save(ctx context.Context, payment entities.Payment) error {
	if payment.Items == nil {
		payment.Items = []entities.PaymentItem{}
	} else {
		payment.Items = slices.Clone(payment.Items)
	}

	shard := db.getShard(payment.ID)
	shard.Lock()
	defer shard.Unlock()

	if existing, ok := shard.store[payment.ID]; ok {
		shard.store[payment.ID] = storedPayment{seq: existing.seq, payment: payment}
		return nil
	}
	shard.store[payment.ID] = storedPayment{seq: db.seq.Add(1), payment: payment}
	return nil
}

func (db *InMemoryPaymentDB) FindAll(ctx context.Context) ([]entities.Payment, error) {
	totalRecords := 0
	for _, shard := range db.shards {
		shard.RLock()
		totalRecords += len(shard.store)
		shard.RUnlock()
	}

	stored := make([]storedPayment, 0, totalRecords)
	if totalRecords < parallelScanThreshold {
		for _, shard := range db.shards {
			stored = collectShard(shard, stored)
		}
	} else {
		stored = db.collectParallel(stored)
	}

	slices.SortFunc(stored, func(a, b storedPayment) int {
		return cmp.Compare(a.seq, b.seq)
	})

	payments := make([]entities.Payment, len(stored))
	for i, s := range stored {
		payments[i] = s.payment
		payments[i].Items = slices.Clone(s.payment.Items)
	}
	return payments, nil
}

func (db *InMemoryPaymentDB) collectParallel(acc []storedPayment) []storedPayment {
	var mu sync.Mutex
	wg := sync.WaitGroup{}
	wg.Add(shardCount)

	sem := make(chan struct{}, runtime.NumCPU())

	for _, shard := range db.shards {
		shard := shard
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			local := collectShard(shard, nil)
			<-sem

			mu.Lock()
			acc = append(acc, local...)
			mu.Unlock()
		}()
	}

	wg.Wait()
	return acc
}

func collectShard(s *paymentShard, acc []storedPayment) []storedPayment {
	s.RLock()
	defer s.RUnlock()

	for _, p := range s.store {
		acc = append(acc, p)
	}
	return acc
}

func (db *InMemoryPaymentDB) Purge(ctx context.Context) error {
	for _, shard := range db.shards {
		shard.Lock()
		clear(shard.store)
		shard.Unlock()
	}
	return nil
}
