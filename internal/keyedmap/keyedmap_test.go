package keyedmap

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAddsThenUpdates(t *testing.T) {
	m := New(16)

	res := m.Put(Record{URL: "example.com", IP: "1.2.3.4", ExpiresAt: 0})
	require.Equal(t, PutAdded, res)
	require.Equal(t, 1, m.Size())

	res = m.Put(Record{URL: "example.com", IP: "5.6.7.8", ExpiresAt: 100})
	require.Equal(t, PutUpdated, res)
	require.Equal(t, 1, m.Size())

	rec, ok := m.Get("example.com")
	require.True(t, ok)
	assert.Equal(t, "5.6.7.8", rec.IP)
	assert.Equal(t, uint32(100), rec.ExpiresAt)
}

func TestPutRejectsEmptyURL(t *testing.T) {
	m := New(16)
	res := m.Put(Record{URL: "", IP: "1.2.3.4"})
	assert.Equal(t, PutError, res)
	assert.Equal(t, 0, m.Size())
}

func TestGetMissingReturnsFalse(t *testing.T) {
	m := New(16)
	_, ok := m.Get("nope.example")
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	m := New(16)
	m.Put(Record{URL: "a.test", IP: "1.1.1.1"})
	assert.True(t, m.Remove("a.test"))
	assert.False(t, m.Remove("a.test"))
	assert.True(t, m.IsEmpty())
}

func TestLoadFactorNeverExceedsThreshold(t *testing.T) {
	m := New(16)
	for i := 0; i < 1000; i++ {
		m.Put(Record{URL: fmt.Sprintf("host-%d.example", i), IP: "1.2.3.4"})
		assert.LessOrEqualf(t, float64(m.Size())/float64(m.capacity), MaxLoadFactor,
			"load factor exceeded after %d inserts", i+1)
	}
}

func TestResizeDoublesCapacityAndRetainsEntries(t *testing.T) {
	m := New(DefaultInitialCapacity)
	const n = 12289 // >0.75 * 16384
	for i := 0; i < n; i++ {
		res := m.Put(Record{URL: fmt.Sprintf("url-%d.example", i), IP: "10.0.0.1"})
		require.Equal(t, PutAdded, res)
	}

	assert.Equal(t, DefaultInitialCapacity*ResizeFactor, m.capacity)
	assert.Equal(t, n, m.Size())

	for i := 0; i < n; i++ {
		rec, ok := m.Get(fmt.Sprintf("url-%d.example", i))
		require.True(t, ok)
		assert.Equal(t, "10.0.0.1", rec.IP)
	}
}

func TestSweepRemovesExpiredAndInvalidEntries(t *testing.T) {
	m := New(16)
	now := time.Unix(1_700_000_000, 0)

	m.Put(Record{URL: "a.test", IP: "1.1.1.1", ExpiresAt: uint32(now.Unix()) - 1})
	m.Put(Record{URL: "b.test", IP: "2.2.2.2", ExpiresAt: uint32(now.Unix()) + 1000})
	m.Put(Record{URL: "c.test", IP: "not-an-ip", ExpiresAt: 0})
	m.Put(Record{URL: "d.test", IP: "3.3.3.3", ExpiresAt: 0})

	removed := m.Sweep(now)
	assert.Equal(t, 2, removed)

	_, ok := m.Get("a.test")
	assert.False(t, ok)
	_, ok = m.Get("c.test")
	assert.False(t, ok)

	rec, ok := m.Get("b.test")
	require.True(t, ok)
	assert.Equal(t, "2.2.2.2", rec.IP)

	_, ok = m.Get("d.test")
	assert.True(t, ok)
}

func TestWipePreservesCapacity(t *testing.T) {
	m := New(16)
	for i := 0; i < 20; i++ {
		m.Put(Record{URL: fmt.Sprintf("w-%d.test", i), IP: "1.2.3.4"})
	}
	capBefore := m.capacity
	m.Wipe()
	assert.Equal(t, 0, m.Size())
	assert.Equal(t, capBefore, m.capacity)
	_, ok := m.Get("w-0.test")
	assert.False(t, ok)
}

func TestConcurrentPutAndGet(t *testing.T) {
	m := New(DefaultInitialCapacity)
	const perGoroutine = 10000
	const writers = 8

	var wg sync.WaitGroup
	wg.Add(writers)
	for g := 0; g < writers; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				url := fmt.Sprintf("g%d-%d.example", g, i)
				m.Put(Record{URL: url, IP: "9.9.9.9"})
			}
		}(g)
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				m.Get("g0-5.example")
			}
		}
	}()

	wg.Wait()
	close(stop)

	assert.Equal(t, writers*perGoroutine, m.Size())
	for g := 0; g < writers; g++ {
		rec, ok := m.Get(fmt.Sprintf("g%d-%d.example", g, perGoroutine/2))
		require.True(t, ok)
		assert.Equal(t, "9.9.9.9", rec.IP)
	}
}
