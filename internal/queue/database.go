package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// DatabaseOptions tunes the database backend.
type DatabaseOptions struct {
	PollInterval  time.Duration // wait between empty claims
	LeaseDuration time.Duration // how long a claimed item stays invisible
	MaxAttempts   int           // items are discarded after this many claims
	Now           func() time.Time
}

// DatabaseQueue stores items in the automation_queue table. A consumer
// claims an item by setting a lease; the item is deleted on success and
// becomes claimable again when the lease expires.
type DatabaseQueue struct {
	db   *gorm.DB
	opts DatabaseOptions
	log  logger.Logger
}

// NewDatabaseQueue creates a DatabaseQueue.
func NewDatabaseQueue(db *gorm.DB, opts DatabaseOptions, log logger.Logger) *DatabaseQueue {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.LeaseDuration <= 0 {
		opts.LeaseDuration = 5 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &DatabaseQueue{db: db, opts: opts, log: log}
}

// Publish implements Queue.
func (q *DatabaseQueue) Publish(ctx context.Context, queueName string, body []byte) error {
	item := &entities.QueueItem{
		Queue:     queueName,
		MessageID: uuid.NewString(),
		Body:      body,
	}
	if err := q.db.WithContext(ctx).Create(item).Error; err != nil {
		return queueError(err, "publish", queueName)
	}
	return nil
}

// Consume implements Queue.
func (q *DatabaseQueue) Consume(ctx context.Context, queueName string, handler Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		item, err := q.claim(ctx, queueName)
		if err != nil && ctx.Err() == nil {
			q.log.Warn("claim failed", logger.String("queue", queueName), logger.Error(err))
		}
		if item == nil {
			if sleepCtx(ctx, q.opts.PollInterval) != nil {
				return nil
			}
			continue
		}
		q.deliver(ctx, item, handler)
	}
}

func (q *DatabaseQueue) deliver(ctx context.Context, item *entities.QueueItem, handler Handler) {
	msg := Message{ID: item.MessageID, Queue: item.Queue, Body: item.Body, Attempt: item.Attempts}
	err := handler(ctx, msg)
	if err == nil {
		q.ack(ctx, item)
		return
	}
	if item.Attempts >= q.opts.MaxAttempts {
		q.log.Warn("discarding message after max attempts",
			logger.String("queue", item.Queue),
			logger.String("message_id", item.MessageID),
			logger.Int("attempts", item.Attempts),
			logger.Error(err))
		q.ack(ctx, item)
		return
	}
	q.log.Debug("message left for redelivery",
		logger.String("queue", item.Queue),
		logger.String("message_id", item.MessageID),
		logger.Error(err))
}

// ack deletes the item. It uses a fresh context so an item handled during
// shutdown is not redelivered.
func (q *DatabaseQueue) ack(ctx context.Context, item *entities.QueueItem) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := q.db.WithContext(ackCtx).Delete(&entities.QueueItem{}, item.ID).Error; err != nil {
		q.log.Warn("ack failed",
			logger.String("queue", item.Queue),
			logger.String("message_id", item.MessageID),
			logger.Error(err))
	}
}

// claim leases the oldest available item. The conditional update makes the
// claim safe on backends without row locks.
func (q *DatabaseQueue) claim(ctx context.Context, queueName string) (*entities.QueueItem, error) {
	now := q.opts.Now().UTC()
	var claimed *entities.QueueItem

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item entities.QueueItem
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("queue = ? AND (lease_until IS NULL OR lease_until < ?)", queueName, now).
			Order("id ASC").
			Take(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		lease := now.Add(q.opts.LeaseDuration)
		result := tx.Model(&entities.QueueItem{}).
			Where("id = ? AND (lease_until IS NULL OR lease_until < ?)", item.ID, now).
			Updates(map[string]any{
				"lease_until": lease,
				"attempts":    gorm.Expr("attempts + ?", 1),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		item.LeaseUntil = &lease
		item.Attempts++
		claimed = &item
		return nil
	})
	if err != nil {
		return nil, queueError(err, "claim", queueName)
	}
	return claimed, nil
}

// Pending counts items in a queue, leased or not.
func (q *DatabaseQueue) Pending(ctx context.Context, queueName string) (int64, error) {
	var n int64
	err := q.db.WithContext(ctx).Model(&entities.QueueItem{}).Where("queue = ?", queueName).Count(&n).Error
	return n, err
}

// Close implements Queue. The database handle is owned by the caller.
func (q *DatabaseQueue) Close() error { return nil }
