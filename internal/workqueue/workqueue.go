// Package workqueue implements the bounded producer/consumer queue
// between the UDP receiver and the worker pool.
package workqueue

import (
	"net"
	"sync"

	"github.com/jroosing/dnsden/internal/counters"
)

// Capacity is the fixed size of the ring buffer.
const Capacity = 10000

// RequestDescriptor is a single inbound datagram, owned exclusively by
// whichever stage currently holds it: the Receiver until enqueued, the
// WorkQueue while queued, and a Worker from dequeue until the reply is
// sent (or the request is dropped).
type RequestDescriptor struct {
	ClientAddr    string       // peer address in string form, for logging
	ClientUDPAddr *net.UDPAddr // resolved peer address, for replying
	Payload       []byte
}

// WorkQueue is a fixed-capacity circular buffer. Enqueue blocks while
// full; Dequeue blocks while empty. Both are FIFO across any number of
// concurrent producers and consumers. QueueDepth on the shared counters
// is updated under the same lock as the buffer mutation, so a reader
// never observes a counter value inconsistent with the queue's contents.
type WorkQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	items       []*RequestDescriptor
	front, rear int
	count       int

	counters *counters.Counters
	closed   bool
}

// New creates an empty WorkQueue of fixed Capacity. counters may be nil,
// in which case queue-depth is tracked only internally.
func New(c *counters.Counters) *WorkQueue {
	q := &WorkQueue{
		items:    make([]*RequestDescriptor, Capacity),
		counters: c,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Enqueue blocks while the queue is full, then appends item and signals a
// waiting consumer. It returns false without blocking further if the
// queue has been Closed.
func (q *WorkQueue) Enqueue(item *RequestDescriptor) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == Capacity && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return false
	}

	q.items[q.rear] = item
	q.rear = (q.rear + 1) % Capacity
	q.count++
	q.setDepthLocked()

	q.notEmpty.Signal()
	return true
}

// Dequeue blocks while the queue is empty, then removes and returns the
// oldest item. The second return value is false only when the queue is
// Closed and drained.
func (q *WorkQueue) Dequeue() (*RequestDescriptor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.count == 0 && q.closed {
		return nil, false
	}

	item := q.items[q.front]
	q.items[q.front] = nil
	q.front = (q.front + 1) % Capacity
	q.count--
	q.setDepthLocked()

	q.notFull.Signal()
	return item, true
}

// setDepthLocked publishes the current count to the shared counters.
// Caller must hold q.mu.
func (q *WorkQueue) setDepthLocked() {
	if q.counters != nil {
		q.counters.SetQueueDepth(uint32(q.count))
	}
}

// Len reports the number of items currently queued.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Close wakes every blocked producer and consumer; subsequent Enqueue
// calls return false immediately and Dequeue returns false once drained.
func (q *WorkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}
