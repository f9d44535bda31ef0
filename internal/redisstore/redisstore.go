// Package redisstore keeps two-phase transfer markers and the reconciliation
// queue in Redis, so they survive a restart of the ledger process.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPendingKey = "ledger:pending"
	DefaultQueueKey   = "ledger:reconcile"
)

func NewClient(addrs []string, password string, useCluster bool) redis.UniversalClient {
	if useCluster && len(addrs) > 1 {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    addrs,
			Password: password,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:     addrs[0],
		Password: password,
		DB:       0,
	})
}

// Pending stores markers as JSON fields of a single hash.
type Pending struct {
	client redis.UniversalClient
	key    string
}

func NewPending(client redis.UniversalClient, namespace string) *Pending {
	key := DefaultPendingKey
	if namespace != "" {
		key = namespace + ":pending"
	}
	return &Pending{client: client, key: key}
}

func (p *Pending) Put(ctx context.Context, t ledger.PendingTransfer) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode pending transfer: %w", err)
	}
	if err := p.client.HSet(ctx, p.key, t.ID, payload).Err(); err != nil {
		return fmt.Errorf("put pending transfer: %w", err)
	}
	return nil
}

func (p *Pending) Get(ctx context.Context, id string) (ledger.PendingTransfer, error) {
	raw, err := p.client.HGet(ctx, p.key, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return ledger.PendingTransfer{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.PendingTransfer{}, fmt.Errorf("get pending transfer: %w", err)
	}
	var t ledger.PendingTransfer
	if err := json.Unmarshal(raw, &t); err != nil {
		return ledger.PendingTransfer{}, fmt.Errorf("decode pending transfer: %w", err)
	}
	return t, nil
}

func (p *Pending) Delete(ctx context.Context, id string) error {
	if err := p.client.HDel(ctx, p.key, id).Err(); err != nil {
		return fmt.Errorf("delete pending transfer: %w", err)
	}
	return nil
}

func (p *Pending) ListStale(ctx context.Context, olderThan time.Time) ([]ledger.PendingTransfer, error) {
	all, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending transfers: %w", err)
	}
	var out []ledger.PendingTransfer
	for id, raw := range all {
		var t ledger.PendingTransfer
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("decode pending transfer %s: %w", id, err)
		}
		if t.UpdatedAt.Before(olderThan) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Queue is a FIFO list of JSON encoded discrepancies.
type Queue struct {
	client redis.UniversalClient
	key    string
}

func NewQueue(client redis.UniversalClient, namespace string) *Queue {
	key := DefaultQueueKey
	if namespace != "" {
		key = namespace + ":reconcile"
	}
	return &Queue{client: client, key: key}
}

func (q *Queue) Push(ctx context.Context, d ledger.Discrepancy) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode discrepancy: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push discrepancy: %w", err)
	}
	return nil
}

func (q *Queue) Pop(ctx context.Context) (ledger.Discrepancy, bool, error) {
	raw, err := q.client.LPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ledger.Discrepancy{}, false, nil
	}
	if err != nil {
		return ledger.Discrepancy{}, false, fmt.Errorf("pop discrepancy: %w", err)
	}
	var d ledger.Discrepancy
	if err := json.Unmarshal(raw, &d); err != nil {
		return ledger.Discrepancy{}, false, fmt.Errorf("decode discrepancy: %w", err)
	}
	return d, true, nil
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

// Notifier publishes ledger events on a Redis channel for live subscribers.
type Notifier struct {
	client  redis.UniversalClient
	channel string
}

func NewNotifier(client redis.UniversalClient, channel string) *Notifier {
	return &Notifier{client: client, channel: channel}
}

func (n *Notifier) Publish(ctx context.Context, ev ledger.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
