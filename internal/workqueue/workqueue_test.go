package workqueue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/dnsden/internal/counters"
)

func TestFIFOSingleProducer(t *testing.T) {
	q := New(nil)
	for i := 0; i < 100; i++ {
		ok := q.Enqueue(&RequestDescriptor{ClientAddr: fmt.Sprintf("10.0.0.1:%d", i)})
		require.True(t, ok)
	}
	for i := 0; i < 100; i++ {
		item, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("10.0.0.1:%d", i), item.ClientAddr)
	}
}

func TestEnqueueBlocksAtCapacity(t *testing.T) {
	q := New(nil)
	for i := 0; i < Capacity; i++ {
		require.True(t, q.Enqueue(&RequestDescriptor{}))
	}

	done := make(chan struct{})
	go func() {
		q.Enqueue(&RequestDescriptor{ClientAddr: "late"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("enqueue should have blocked at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	_, _ = q.Dequeue()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue did not unblock after a dequeue")
	}
}

func TestQueueDepthConsistentUnderLock(t *testing.T) {
	c := counters.New()
	q := New(c)

	q.Enqueue(&RequestDescriptor{})
	assert.Equal(t, uint32(1), c.QueueDepth())
	q.Enqueue(&RequestDescriptor{})
	assert.Equal(t, uint32(2), c.QueueDepth())

	q.Dequeue()
	assert.Equal(t, uint32(1), c.QueueDepth())
}

func TestConcurrentProducersConsumers(t *testing.T) {
	q := New(nil)
	const total = 5000
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			q.Enqueue(&RequestDescriptor{ClientAddr: fmt.Sprintf("c-%d", i)})
		}
	}()

	seen := make([]bool, total)
	var mu sync.Mutex
	wg.Add(4)
	for w := 0; w < 4; w++ {
		go func() {
			defer wg.Done()
			for {
				item, ok := q.Dequeue()
				if !ok {
					return
				}
				var idx int
				fmt.Sscanf(item.ClientAddr, "c-%d", &idx)
				mu.Lock()
				seen[idx] = true
				done := allTrue(seen)
				mu.Unlock()
				if done {
					q.Close()
					return
				}
			}
		}()
	}

	wg.Wait()
	for i, v := range seen {
		assert.Truef(t, v, "item %d never dequeued", i)
	}
}

func allTrue(b []bool) bool {
	for _, v := range b {
		if !v {
			return false
		}
	}
	return true
}
