package queue

import (
	"sync"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

// MemQueue is an unbounded in-memory FIFO of raw records.
type MemQueue struct {
	mu   sync.Mutex
	data []domain.RawRecord
}

// NewMemQueue preallocates room for hint records.
func NewMemQueue(hint int) *MemQueue {
	if hint < 0 {
		hint = 0
	}
	return &MemQueue{data: make([]domain.RawRecord, 0, hint)}
}

func (q *MemQueue) Enqueue(r domain.RawRecord) {
	q.mu.Lock()
	q.data = append(q.data, r)
	q.mu.Unlock()
}

// Drain hands over everything queued so far. Records enqueued while the
// caller works through the result wait for the next Drain.
func (q *MemQueue) Drain() []domain.RawRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	out := q.data
	q.data = make([]domain.RawRecord, 0, cap(out)/2)
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

var _ ports.RecordQueue = (*MemQueue)(nil)
