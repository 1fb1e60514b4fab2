package engine

import "time"

// timerEntry is one armed timer: a (deadline, insertion sequence) pair,
// deadline ties broken by insertion order, with the callback and a
// back-pointer to the handle so DisarmTimer can find and erase it in
// O(log n).
type timerEntry struct {
	deadline time.Time
	seq      uint64
	timer    *Timer
	cb       func()
	index    int // heap index, maintained by container/heap
}

// timerHeap is a min-heap ordered by (deadline, seq), the classic
// ordered-multimap timer queue shape; container/heap is the idiomatic
// Go substitute for it.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if !h[i].deadline.Equal(h[j].deadline) {
		return h[i].deadline.Before(h[j].deadline)
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
