package posting

// priorityHeap orders QueueItems by (-priority, scheduled-or-created
// timestamp): higher priority first, ties broken by the earlier effective
// timestamp, so container/heap yields the item the Posting Queue should
// dequeue next at index 0. A retried item re-sorts under its new
// ScheduledFor rather than its original creation time.
type priorityHeap []*QueueItem

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].effectiveTime().Before(h[j].effectiveTime())
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x any) {
	item := x.(*QueueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
