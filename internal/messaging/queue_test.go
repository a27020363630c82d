package messaging

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestPartitionQueueKeepsOrderAndDrainsAfterClose(t *testing.T) {
	q := newPartitionQueue(1)
	for i := range 3 {
		if n := q.push(kafka.Message{Offset: int64(i)}); n != i+1 {
			t.Fatalf("expected backlog %d, got %d", i+1, n)
		}
	}
	q.close()
	for i := range 3 {
		msg, ok := q.pop()
		if !ok || msg.Offset != int64(i) {
			t.Fatalf("expected offset %d, got %d (%v)", i, msg.Offset, ok)
		}
	}
	if _, ok := q.pop(); ok {
		t.Fatalf("expected closed queue to be empty")
	}
}

func TestPartitionQueuePopWaitsForPush(t *testing.T) {
	q := newPartitionQueue(1)
	got := make(chan int64, 1)
	go func() {
		msg, _ := q.pop()
		got <- msg.Offset
	}()
	time.Sleep(10 * time.Millisecond)
	q.push(kafka.Message{Offset: 7})
	select {
	case off := <-got:
		if off != 7 {
			t.Fatalf("expected offset 7, got %d", off)
		}
	case <-time.After(time.Second):
		t.Fatalf("pop did not wake up")
	}
}
