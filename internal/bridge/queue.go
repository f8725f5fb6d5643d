package bridge

import (
	"sync"

	"icc.tech/pcap-bridge/internal/core"
)

// DefaultQueueCapacity bounds the capture queue when the configuration does
// not override it.
const DefaultQueueCapacity = 10000

// captureQueue is the bounded MPSC buffer between the tap fast path and the
// sender. Producers never block: when the queue is full the packet is
// dropped and counted. The consumer drains by swapping the whole backlog
// out under one lock acquisition.
type captureQueue struct {
	mu        sync.Mutex
	packets   []*core.CapturedPacket
	capacity  int
	overflows uint64
	signal    chan struct{}
}

func newCaptureQueue(capacity int) *captureQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &captureQueue{
		packets:  make([]*core.CapturedPacket, 0, capacity),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue appends pkt unless the queue is full, in which case the packet is
// dropped and the overflow counter incremented. Returns whether the packet
// was accepted. Never blocks beyond the mutex.
func (q *captureQueue) Enqueue(pkt *core.CapturedPacket) bool {
	q.mu.Lock()
	if len(q.packets) >= q.capacity {
		q.overflows++
		q.mu.Unlock()
		return false
	}
	q.packets = append(q.packets, pkt)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Swap detaches the entire backlog and leaves an empty queue behind.
// Ordering within the returned batch is arrival order.
func (q *captureQueue) Swap() []*core.CapturedPacket {
	q.mu.Lock()
	batch := q.packets
	q.packets = make([]*core.CapturedPacket, 0, q.capacity)
	q.mu.Unlock()
	return batch
}

// Len reports the current backlog size.
func (q *captureQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.packets)
}

// Overflows reports how many packets were dropped at enqueue time.
func (q *captureQueue) Overflows() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.overflows
}

// Signal is closed-over by the sender loop to wake up without polling.
func (q *captureQueue) Signal() <-chan struct{} {
	return q.signal
}
