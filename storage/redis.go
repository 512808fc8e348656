package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"smartqueue/internal/status"
	"smartqueue/models"
)

// RedisStore is the durable Store implementation. Records are JSON strings;
// an in-line index set per queue keeps ListInLineTickets a two-command read.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func queueKey(id string) string          { return fmt.Sprintf("queue:info:%s", id) }
func ticketKey(id string) string         { return fmt.Sprintf("ticket:%s", id) }
func inlineKey(queueID string) string    { return fmt.Sprintf("queue:inline:%s", queueID) }
func statsKey(q, window string) string   { return fmt.Sprintf("stats:%s:%s", q, window) }
func latestStatsKey(queueID string) string { return fmt.Sprintf("stats:latest:%s", queueID) }

const queueIndexKey = "queues"

func upstream(err error) error {
	return fmt.Errorf("%w: %v", status.ErrUpstream, err)
}

func (r *RedisStore) LoadQueue(ctx context.Context, id string) (*models.Queue, error) {
	data, err := r.client.Get(ctx, queueKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, status.ErrQueueNotFound
	}
	if err != nil {
		return nil, upstream(err)
	}

	var queue models.Queue
	if err := json.Unmarshal([]byte(data), &queue); err != nil {
		return nil, upstream(err)
	}
	return &queue, nil
}

func (r *RedisStore) SaveQueue(ctx context.Context, queue *models.Queue) error {
	data, err := json.Marshal(queue)
	if err != nil {
		return upstream(err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, queueKey(queue.ID), data, 0)
	pipe.SAdd(ctx, queueIndexKey, queue.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return upstream(err)
	}
	return nil
}

func (r *RedisStore) ListQueues(ctx context.Context) ([]*models.Queue, error) {
	ids, err := r.client.SMembers(ctx, queueIndexKey).Result()
	if err != nil {
		return nil, upstream(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = queueKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, upstream(err)
	}

	var out []*models.Queue
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var queue models.Queue
		if err := json.Unmarshal([]byte(s), &queue); err != nil {
			continue
		}
		out = append(out, &queue)
	}
	return out, nil
}

func (r *RedisStore) DeleteQueue(ctx context.Context, id string) error {
	removed, err := r.client.SRem(ctx, queueIndexKey, id).Result()
	if err != nil {
		return upstream(err)
	}
	if removed == 0 {
		return status.ErrQueueNotFound
	}
	if err := r.client.Del(ctx, queueKey(id)).Err(); err != nil {
		return upstream(err)
	}
	return nil
}

func (r *RedisStore) LoadTicket(ctx context.Context, id string) (*models.Ticket, error) {
	data, err := r.client.Get(ctx, ticketKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, status.ErrTicketNotFound
	}
	if err != nil {
		return nil, upstream(err)
	}

	var ticket models.Ticket
	if err := json.Unmarshal([]byte(data), &ticket); err != nil {
		return nil, upstream(err)
	}
	return &ticket, nil
}

func (r *RedisStore) SaveTicket(ctx context.Context, ticket *models.Ticket) error {
	return r.SaveTickets(ctx, []*models.Ticket{ticket})
}

func (r *RedisStore) SaveTickets(ctx context.Context, tickets []*models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, t := range tickets {
		data, err := json.Marshal(t)
		if err != nil {
			return upstream(err)
		}
		pipe.Set(ctx, ticketKey(t.ID), data, 0)
		if t.Status.InLine() {
			pipe.SAdd(ctx, inlineKey(t.QueueID), t.ID)
		} else {
			pipe.SRem(ctx, inlineKey(t.QueueID), t.ID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return upstream(err)
	}
	return nil
}

func (r *RedisStore) ListInLineTickets(ctx context.Context, queueID string) ([]*models.Ticket, error) {
	ids, err := r.client.SMembers(ctx, inlineKey(queueID)).Result()
	if err != nil {
		return nil, upstream(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = ticketKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, upstream(err)
	}

	var out []*models.Ticket
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var ticket models.Ticket
		if err := json.Unmarshal([]byte(s), &ticket); err != nil {
			continue
		}
		if ticket.Status.InLine() {
			out = append(out, &ticket)
		}
	}
	return out, nil
}

func (r *RedisStore) LoadStats(ctx context.Context, queueID, window string) (*models.EtaStats, error) {
	data, err := r.client.Get(ctx, statsKey(queueID, window)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStatsNotFound
	}
	if err != nil {
		return nil, upstream(err)
	}

	var stats models.EtaStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, upstream(err)
	}
	return &stats, nil
}

func (r *RedisStore) SaveStats(ctx context.Context, stats *models.EtaStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return upstream(err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, statsKey(stats.QueueID, stats.TimeWindow), data, 0)
	pipe.Set(ctx, latestStatsKey(stats.QueueID), stats.TimeWindow, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return upstream(err)
	}
	return nil
}

func (r *RedisStore) LatestStats(ctx context.Context, queueID string) (*models.EtaStats, error) {
	window, err := r.client.Get(ctx, latestStatsKey(queueID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStatsNotFound
	}
	if err != nil {
		return nil, upstream(err)
	}
	return r.LoadStats(ctx, queueID, window)
}
