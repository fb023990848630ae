package vecindex

import "sort"

// scored 是 beam search 过程中的 (位置, 分数) 对
type scored struct {
	pos   int
	score float32
}

// maxHeap 分数大顶堆，用作扩展候选队列
type maxHeap []scored

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(v interface{}) { *h = append(*h, v.(scored)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// minHeap 分数小顶堆，堆顶是当前结果集中最差的一个
type minHeap []scored

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].score < h[j].score }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(v interface{}) { *h = append(*h, v.(scored)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// closestN 按分数降序取前 n 个，同分时位置小的优先（保证可复现）
func closestN(ss []scored, n int) []scored {
	sorted := make([]scored, len(ss))
	copy(sorted, ss)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].score != sorted[j].score {
			return sorted[i].score > sorted[j].score
		}
		return sorted[i].pos < sorted[j].pos
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
