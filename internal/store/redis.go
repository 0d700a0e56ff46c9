package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docpipe/api/internal/model"
)

// RedisStores bundles the Redis-backed implementations of all three store
// interfaces over one client.
type RedisStores struct {
	Pipelines  *RedisPipelineStore
	Operations *RedisOperationStore
	Documents  *RedisDocumentIndex
}

// NewRedisStores creates the Redis store set. retention bounds how long
// finished rows stay readable.
func NewRedisStores(client *redis.Client, retention time.Duration) *RedisStores {
	return &RedisStores{
		Pipelines:  &RedisPipelineStore{redis: client, retention: retention},
		Operations: &RedisOperationStore{redis: client, retention: retention},
		Documents:  &RedisDocumentIndex{redis: client, retention: retention},
	}
}

// RedisPipelineStore keeps pipeline jobs as JSON under pipeline:{id}.
type RedisPipelineStore struct {
	redis     *redis.Client
	retention time.Duration
}

func pipelineKey(id string) string { return fmt.Sprintf("pipeline:%s", id) }

func (s *RedisPipelineStore) Create(ctx context.Context, job *model.PipelineJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	ok, err := s.redis.SetNX(ctx, pipelineKey(job.ID), data, s.retention).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	return nil
}

func (s *RedisPipelineStore) Get(ctx context.Context, id string) (*model.PipelineJob, error) {
	data, err := s.redis.Get(ctx, pipelineKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var job model.PipelineJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// SaveIf writes the job inside a WATCH transaction, aborting when the stored
// status is not one of the expected values. The single optimistic retry
// covers the benign case of a concurrent poll refreshing the TTL.
func (s *RedisPipelineStore) SaveIf(ctx context.Context, job *model.PipelineJob, expect ...model.JobStatus) error {
	key := pipelineKey(job.ID)
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		var stored model.PipelineJob
		if err := json.Unmarshal(current, &stored); err != nil {
			return err
		}
		if !statusAllowed(stored.Status, expect) {
			return fmt.Errorf("%w: status is %s", ErrConflict, stored.Status)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.retention)
			return nil
		})
		return err
	}

	err = s.redis.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		err = s.redis.Watch(ctx, txn, key)
	}
	return err
}

// RedisOperationStore keeps sub-operation jobs under opjob:{id}, plus a
// latest-running pointer per (document, operation) for the progress
// fallback lookup.
type RedisOperationStore struct {
	redis     *redis.Client
	retention time.Duration
}

func opJobKey(id string) string { return fmt.Sprintf("opjob:%s", id) }

func opLatestKey(documentID string, op model.OperationKind) string {
	return fmt.Sprintf("opjob:latest:%s:%s", documentID, op)
}

func (s *RedisOperationStore) Create(ctx context.Context, op *model.OperationJob) error {
	if err := s.Save(ctx, op); err != nil {
		return err
	}
	return s.redis.Set(ctx, opLatestKey(op.DocumentID, op.Operation), op.ID, s.retention).Err()
}

func (s *RedisOperationStore) Get(ctx context.Context, id string) (*model.OperationJob, error) {
	data, err := s.redis.Get(ctx, opJobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var op model.OperationJob
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *RedisOperationStore) Save(ctx context.Context, op *model.OperationJob) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to marshal operation job: %w", err)
	}
	return s.redis.Set(ctx, opJobKey(op.ID), data, s.retention).Err()
}

func (s *RedisOperationStore) LatestRunning(ctx context.Context, documentID string, kind model.OperationKind) (*model.OperationJob, error) {
	id, err := s.redis.Get(ctx, opLatestKey(documentID, kind)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	op, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status != model.OperationJobRunning {
		return nil, ErrNotFound
	}
	return op, nil
}

// RedisDocumentIndex keeps intermediate document records as a list under
// pipedoc:{pipelineJobId}. Append-only; artifacts are never rewritten.
type RedisDocumentIndex struct {
	redis     *redis.Client
	retention time.Duration
}

func docIndexKey(pipelineJobID string) string {
	return fmt.Sprintf("pipedoc:%s", pipelineJobID)
}

func (s *RedisDocumentIndex) Append(ctx context.Context, doc *model.IntermediateDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal intermediate document: %w", err)
	}
	key := docIndexKey(doc.PipelineJobID)
	if err := s.redis.RPush(ctx, key, data).Err(); err != nil {
		return err
	}
	return s.redis.Expire(ctx, key, s.retention).Err()
}

func (s *RedisDocumentIndex) List(ctx context.Context, pipelineJobID string) ([]model.IntermediateDocument, error) {
	items, err := s.redis.LRange(ctx, docIndexKey(pipelineJobID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	docs := make([]model.IntermediateDocument, 0, len(items))
	for _, item := range items {
		var doc model.IntermediateDocument
		if err := json.Unmarshal([]byte(item), &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
