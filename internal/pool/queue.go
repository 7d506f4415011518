package pool

import (
	"iter"
	"sync"

	"github.com/theirongolddev/aconv/internal/model"
)

// Queue is the FIFO of pending transcode jobs. It is seeded once and only
// drained afterwards; Pop is safe for concurrent workers.
type Queue struct {
	mu    sync.Mutex
	items []model.FilePair
	head  int
}

// NewQueue seeds a queue from seq.
func NewQueue(seq iter.Seq[model.FilePair]) *Queue {
	q := &Queue{}
	for p := range seq {
		q.items = append(q.items, p)
	}
	return q
}

// Pop removes and returns the oldest pair. ok is false once the queue is empty.
func (q *Queue) Pop() (model.FilePair, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		return model.FilePair{}, false
	}
	p := q.items[q.head]
	q.items[q.head] = model.FilePair{}
	q.head++
	return p, true
}

// Len returns the number of pairs not yet popped.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
