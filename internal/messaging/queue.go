package messaging

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

// partitionQueue is the backlog of one partition's worker. push never blocks,
// so a partition whose handler is stuck keeps accumulating its own records
// while the fetch loop goes on serving the others.
type partitionQueue struct {
	mu     sync.Mutex
	items  []kafka.Message
	closed bool
	ready  chan struct{}
}

func newPartitionQueue(capacity int) *partitionQueue {
	return &partitionQueue{
		items: make([]kafka.Message, 0, capacity),
		ready: make(chan struct{}, 1),
	}
}

// push appends msg and returns the backlog length.
func (q *partitionQueue) push(msg kafka.Message) int {
	q.mu.Lock()
	q.items = append(q.items, msg)
	n := len(q.items)
	q.mu.Unlock()
	q.signal()
	return n
}

// pop blocks until a record is available. It returns false once the queue is
// closed and empty.
func (q *partitionQueue) pop() (kafka.Message, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = kafka.Message{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return msg, true
		}
		if q.closed {
			q.mu.Unlock()
			return kafka.Message{}, false
		}
		q.mu.Unlock()
		<-q.ready
	}
}

func (q *partitionQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *partitionQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
