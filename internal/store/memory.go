package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/docpipe/api/internal/model"
)

// MemoryStores implements all three store interfaces in process. Used when
// Redis is not configured and by tests. Rows are deep-copied through JSON so
// callers never share pointers with the store.
type MemoryStores struct {
	mu        sync.RWMutex
	pipelines map[string][]byte
	opJobs    map[string][]byte
	opLatest  map[string]string
	docs      map[string][][]byte
}

// NewMemoryStores creates an empty in-memory store set.
func NewMemoryStores() *MemoryStores {
	return &MemoryStores{
		pipelines: make(map[string][]byte),
		opJobs:    make(map[string][]byte),
		opLatest:  make(map[string]string),
		docs:      make(map[string][][]byte),
	}
}

func (s *MemoryStores) Create(ctx context.Context, job *model.PipelineJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pipelines[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.pipelines[job.ID] = data
	return nil
}

func (s *MemoryStores) Get(ctx context.Context, id string) (*model.PipelineJob, error) {
	s.mu.RLock()
	data, ok := s.pipelines[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var job model.PipelineJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *MemoryStores) SaveIf(ctx context.Context, job *model.PipelineJob, expect ...model.JobStatus) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.pipelines[job.ID]
	if !ok {
		return ErrNotFound
	}
	var stored model.PipelineJob
	if err := json.Unmarshal(current, &stored); err != nil {
		return err
	}
	if !statusAllowed(stored.Status, expect) {
		return fmt.Errorf("%w: status is %s", ErrConflict, stored.Status)
	}
	s.pipelines[job.ID] = data
	return nil
}

// MemoryOperationStore is the in-process OperationStore over the same set.
type MemoryOperationStore struct{ s *MemoryStores }

// Operations returns the OperationStore view of the set.
func (s *MemoryStores) Operations() *MemoryOperationStore {
	return &MemoryOperationStore{s: s}
}

func latestKey(documentID string, kind model.OperationKind) string {
	return documentID + ":" + string(kind)
}

func (m *MemoryOperationStore) Create(ctx context.Context, op *model.OperationJob) error {
	if err := m.Save(ctx, op); err != nil {
		return err
	}
	m.s.mu.Lock()
	m.s.opLatest[latestKey(op.DocumentID, op.Operation)] = op.ID
	m.s.mu.Unlock()
	return nil
}

func (m *MemoryOperationStore) Get(ctx context.Context, id string) (*model.OperationJob, error) {
	m.s.mu.RLock()
	data, ok := m.s.opJobs[id]
	m.s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var op model.OperationJob
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (m *MemoryOperationStore) Save(ctx context.Context, op *model.OperationJob) error {
	data, err := json.Marshal(op)
	if err != nil {
		return err
	}
	m.s.mu.Lock()
	m.s.opJobs[op.ID] = data
	m.s.mu.Unlock()
	return nil
}

func (m *MemoryOperationStore) LatestRunning(ctx context.Context, documentID string, kind model.OperationKind) (*model.OperationJob, error) {
	m.s.mu.RLock()
	id, ok := m.s.opLatest[latestKey(documentID, kind)]
	m.s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	op, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status != model.OperationJobRunning {
		return nil, ErrNotFound
	}
	return op, nil
}

// MemoryDocumentIndex is the in-process DocumentIndex over the same set.
type MemoryDocumentIndex struct{ s *MemoryStores }

// Documents returns the DocumentIndex view of the set.
func (s *MemoryStores) Documents() *MemoryDocumentIndex {
	return &MemoryDocumentIndex{s: s}
}

func (m *MemoryDocumentIndex) Append(ctx context.Context, doc *model.IntermediateDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.s.mu.Lock()
	m.s.docs[doc.PipelineJobID] = append(m.s.docs[doc.PipelineJobID], data)
	m.s.mu.Unlock()
	return nil
}

func (m *MemoryDocumentIndex) List(ctx context.Context, pipelineJobID string) ([]model.IntermediateDocument, error) {
	m.s.mu.RLock()
	items := m.s.docs[pipelineJobID]
	m.s.mu.RUnlock()
	docs := make([]model.IntermediateDocument, 0, len(items))
	for _, item := range items {
		var doc model.IntermediateDocument
		if err := json.Unmarshal(item, &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
