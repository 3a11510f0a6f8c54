package registry

import "time"

// expiry is one scheduled eviction. Re-arming a session's TTL pushes a new
// expiry with a bumped gen instead of removing the old one; a popped expiry
// whose gen no longer matches the live entry is stale and ignored.
type expiry struct {
	deadline time.Time
	username string
	gen      uint64
}

// expiryHeap is a min-heap over deadline, used with container/heap.
type expiryHeap []expiry

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(expiry)) }

func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
