package bridge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icc.tech/pcap-bridge/internal/core"
)

func pkt(id uint32) *core.CapturedPacket {
	return &core.CapturedPacket{InterfaceID: id}
}

func TestQueueBounded(t *testing.T) {
	q := newCaptureQueue(10)

	for i := 0; i < 10; i++ {
		require.True(t, q.Enqueue(pkt(uint32(i))))
	}
	assert.Equal(t, 10, q.Len())

	// Over capacity: dropped and counted, no growth.
	assert.False(t, q.Enqueue(pkt(99)))
	assert.False(t, q.Enqueue(pkt(100)))
	assert.Equal(t, 10, q.Len())
	assert.Equal(t, uint64(2), q.Overflows())
}

func TestQueueSwapPreservesOrder(t *testing.T) {
	q := newCaptureQueue(100)
	for i := 0; i < 50; i++ {
		q.Enqueue(pkt(uint32(i)))
	}

	batch := q.Swap()
	require.Len(t, batch, 50)
	for i, p := range batch {
		assert.Equal(t, uint32(i), p.InterfaceID)
	}

	// Swap leaves an empty queue that accepts new packets.
	assert.Equal(t, 0, q.Len())
	assert.True(t, q.Enqueue(pkt(7)))
	assert.Len(t, q.Swap(), 1)
}

func TestQueueSwapEmpty(t *testing.T) {
	q := newCaptureQueue(10)
	assert.Empty(t, q.Swap())
}

func TestQueueOverflowRecoversAfterSwap(t *testing.T) {
	q := newCaptureQueue(5)
	for i := 0; i < 5; i++ {
		q.Enqueue(pkt(0))
	}
	assert.False(t, q.Enqueue(pkt(0)))

	q.Swap()
	assert.True(t, q.Enqueue(pkt(0)))
	assert.Equal(t, uint64(1), q.Overflows())
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := newCaptureQueue(DefaultQueueCapacity)

	var wg sync.WaitGroup
	const producers, perProducer = 8, 500
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(pkt(id))
			}
		}(uint32(p))
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())
	assert.Equal(t, uint64(0), q.Overflows())
}

func TestQueueSignalNonBlocking(t *testing.T) {
	q := newCaptureQueue(10)
	// Many enqueues without a consumer must not block on the signal
	// channel.
	for i := 0; i < 10; i++ {
		q.Enqueue(pkt(0))
	}
	select {
	case <-q.Signal():
	default:
		t.Fatal("expected pending wakeup signal")
	}
}
