// Package repository persists and fans out judging progress. The latest
// snapshot of every submission lives in Redis for query serving; every
// snapshot is also published to Kafka for downstream consumers. Reporting
// is fire and forget: a broken sink never fails a judging run.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orbitoj/internal/common/cache"
	"orbitoj/internal/common/mq"
	"orbitoj/internal/judge/model"
	appErr "orbitoj/pkg/errors"
	"orbitoj/pkg/utils/logger"
)

const progressKeyPrefix = "judge:progress:"

// ProgressRepository stores the latest snapshot per submission and exposes
// it for the query API.
type ProgressRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewProgressRepository(c cache.Cache, ttl time.Duration) *ProgressRepository {
	return &ProgressRepository{cache: c, ttl: ttl}
}

func progressKey(submissionID string) string {
	return progressKeyPrefix + submissionID
}

// Save overwrites the stored snapshot for the submission.
func (r *ProgressRepository) Save(ctx context.Context, snapshot *model.ProgressSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "marshal progress snapshot")
	}
	if err := r.cache.Set(ctx, progressKey(snapshot.SubmissionID), data, r.ttl); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store progress snapshot")
	}
	return nil
}

// Get returns the latest stored snapshot for the submission.
func (r *ProgressRepository) Get(ctx context.Context, submissionID string) (*model.ProgressSnapshot, error) {
	data, err := r.cache.Get(ctx, progressKey(submissionID))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "load progress snapshot")
	}
	if data == "" {
		return nil, appErr.Newf(appErr.SubmissionNotFound, "no progress for submission %s", submissionID)
	}
	var snapshot model.ProgressSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "decode progress snapshot")
	}
	return &snapshot, nil
}

// ProgressPublisher emits every snapshot as one Kafka message.
type ProgressPublisher struct {
	producer mq.Producer
	topic    string
}

func NewProgressPublisher(producer mq.Producer, topic string) *ProgressPublisher {
	return &ProgressPublisher{producer: producer, topic: topic}
}

func (p *ProgressPublisher) Publish(ctx context.Context, snapshot *model.ProgressSnapshot) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "marshal progress event")
	}
	msg := mq.NewMessage(body)
	msg.ID = uuid.NewString()
	msg.SetHeader("submission-id", snapshot.SubmissionID)
	msg.SetHeader("progress-type", string(snapshot.ProgressType))
	return p.producer.Publish(ctx, p.topic, msg)
}

// Reporter combines the Redis store and the Kafka publisher into the
// progress tracker's reporting callback. Both sinks are optional; sink
// errors are logged and swallowed so progress reporting never stalls or
// fails a judging run.
type Reporter struct {
	repo      *ProgressRepository
	publisher *ProgressPublisher
}

func NewReporter(repo *ProgressRepository, publisher *ProgressPublisher) *Reporter {
	return &Reporter{repo: repo, publisher: publisher}
}

func (r *Reporter) Report(ctx context.Context, snapshot *model.ProgressSnapshot) {
	if r.repo != nil {
		if err := r.repo.Save(ctx, snapshot); err != nil {
			logger.Warn(ctx, "failed to store progress snapshot", zap.Error(err))
		}
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, snapshot); err != nil {
			logger.Warn(ctx, "failed to publish progress event", zap.Error(err))
		}
	}
}
