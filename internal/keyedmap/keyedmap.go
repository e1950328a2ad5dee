// Package keyedmap implements a thread-safe, chained-bucket hash table
// mapping a domain name to a single (IP, expiry) record.
//
// The hash function, initial capacity, and resize threshold are fixed by
// design rather than left to a generic map, because the positive cache and
// the blocklist both need identical, predictable growth behavior under
// concurrent insertion.
package keyedmap

import (
	"net/netip"
	"sync"
	"time"
)

// DefaultInitialCapacity is the bucket count a new KeyedMap starts with.
const DefaultInitialCapacity = 16384

// MaxLoadFactor is the size/capacity ratio that triggers a resize before
// the insertion that would exceed it is performed.
const MaxLoadFactor = 0.75

// ResizeFactor is the multiplier applied to capacity on resize.
const ResizeFactor = 2

// PutResult describes the outcome of Put.
type PutResult int

const (
	// PutAdded means a new node was created.
	PutAdded PutResult = iota
	// PutUpdated means an existing node's IP/expiry was overwritten.
	PutUpdated
	// PutError means the call was rejected (empty URL).
	PutError
)

// Record is the value stored for each key: an IPv4 dotted-quad string and
// an expiry. ExpiresAt == 0 means the record never expires.
type Record struct {
	URL       string
	IP        string
	ExpiresAt uint32
}

type node struct {
	rec  Record
	next *node
}

// KeyedMap is a chained hash table keyed on Record.URL, guarded by a
// single exclusive lock for the duration of every operation.
type KeyedMap struct {
	mu       sync.Mutex
	buckets  []*node
	size     int
	capacity int
}

// New creates a KeyedMap with the given initial capacity. A non-positive
// capacity falls back to DefaultInitialCapacity.
func New(initialCapacity int) *KeyedMap {
	if initialCapacity <= 0 {
		initialCapacity = DefaultInitialCapacity
	}
	return &KeyedMap{
		buckets:  make([]*node, initialCapacity),
		capacity: initialCapacity,
	}
}

// djb2 hashes s the way the original implementation does:
// h = 5381; h = h*33 + c for every byte c.
func djb2(s string) uint64 {
	var h uint64 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint64(s[i])
	}
	return h
}

func (m *KeyedMap) indexFor(url string, capacity int) int {
	return int(djb2(url) % uint64(capacity))
}

// Put inserts or updates the record for rec.URL. If the URL already
// exists in its chain, its IP and ExpiresAt are overwritten in place and
// PutUpdated is returned. Otherwise the map resizes if the insertion would
// push the load factor above MaxLoadFactor, then a new node is prepended
// to its bucket's chain and PutAdded is returned. An empty URL returns
// PutError without mutating the map.
func (m *KeyedMap) Put(rec Record) PutResult {
	if rec.URL == "" {
		return PutError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexFor(rec.URL, m.capacity)
	for n := m.buckets[idx]; n != nil; n = n.next {
		if n.rec.URL == rec.URL {
			n.rec.IP = rec.IP
			n.rec.ExpiresAt = rec.ExpiresAt
			return PutUpdated
		}
	}

	if float64(m.size+1)/float64(m.capacity) > MaxLoadFactor {
		m.resizeLocked()
		idx = m.indexFor(rec.URL, m.capacity)
	}

	m.buckets[idx] = &node{rec: rec, next: m.buckets[idx]}
	m.size++
	return PutAdded
}

// resizeLocked doubles capacity and rehashes every existing node into the
// new bucket array, reinserting each at the head of its new chain. Caller
// must hold m.mu.
func (m *KeyedMap) resizeLocked() {
	newCapacity := m.capacity * ResizeFactor
	if newCapacity <= m.capacity {
		newCapacity = m.capacity + 1
	}
	newBuckets := make([]*node, newCapacity)
	for _, head := range m.buckets {
		for n := head; n != nil; {
			next := n.next
			idx := int(djb2(n.rec.URL) % uint64(newCapacity))
			n.next = newBuckets[idx]
			newBuckets[idx] = n
			n = next
		}
	}
	m.buckets = newBuckets
	m.capacity = newCapacity
}

// Get returns a copy of the record stored for url, and whether it was
// found. The returned record is safe to retain; it shares no state with
// the map.
func (m *KeyedMap) Get(url string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexFor(url, m.capacity)
	for n := m.buckets[idx]; n != nil; n = n.next {
		if n.rec.URL == url {
			return n.rec, true
		}
	}
	return Record{}, false
}

// Remove unlinks the node for url, if present, and reports whether one
// was removed.
func (m *KeyedMap) Remove(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexFor(url, m.capacity)
	var prev *node
	for n := m.buckets[idx]; n != nil; n = n.next {
		if n.rec.URL == url {
			if prev == nil {
				m.buckets[idx] = n.next
			} else {
				prev.next = n.next
			}
			m.size--
			return true
		}
		prev = n
	}
	return false
}

// Size returns the number of reachable records.
func (m *KeyedMap) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// IsEmpty reports whether the map holds no records.
func (m *KeyedMap) IsEmpty() bool {
	return m.Size() == 0
}

// Sweep walks every bucket and removes entries whose IP is not a
// syntactically valid IPv4 address, or whose ExpiresAt is non-zero and in
// the past relative to now. It returns the number of entries removed.
func (m *KeyedMap) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	nowUnix := uint32(now.Unix())
	removed := 0
	for i, head := range m.buckets {
		var prev *node
		n := head
		for n != nil {
			if !validIPv4(n.rec.IP) || (n.rec.ExpiresAt != 0 && nowUnix > n.rec.ExpiresAt) {
				next := n.next
				if prev == nil {
					m.buckets[i] = next
				} else {
					prev.next = next
				}
				m.size--
				removed++
				n = next
				continue
			}
			prev = n
			n = n.next
		}
	}
	return removed
}

// Wipe removes all entries while preserving capacity.
func (m *KeyedMap) Wipe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.buckets {
		m.buckets[i] = nil
	}
	m.size = 0
}

func validIPv4(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	return err == nil && addr.Is4()
}
