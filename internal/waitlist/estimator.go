// Package waitlist holds the queue-side calculations: wait-time estimates for
// queue positions and validation of the groups that join the queue.
package waitlist

import (
	"container/heap"
	"slices"
	"time"
)

// DefaultAverageGameMinutes is used when the caller supplies no average.
const DefaultAverageGameMinutes = 75

// EstimateWait simulates court turnover and returns an ETA in whole minutes
// for every requested 1-based queue position, in request order.
//
// The release multiset has one instant per court: now for each currently
// free court, then the future next-free instants in ascending order, padded
// with now when fewer are supplied. Each seat takes the earliest release and
// puts back that release plus the average game length.
func EstimateWait(now time.Time, positions []int, currentFreeCount int, nextFree []time.Time, avgMinutes int) []int {
	if len(positions) == 0 {
		return []int{}
	}
	if avgMinutes <= 0 {
		avgMinutes = DefaultAverageGameMinutes
	}
	avg := time.Duration(avgMinutes) * time.Minute

	maxPos := 0
	for _, p := range positions {
		maxPos = max(maxPos, p)
	}
	etas := make([]int, len(positions))
	if maxPos < 1 || len(nextFree) == 0 {
		return etas
	}

	releases := releaseHeap(seedReleases(now, currentFreeCount, nextFree))
	heap.Init(&releases)

	seats := make([]int, maxPos+1)
	for seat := 1; seat <= maxPos; seat++ {
		t := heap.Pop(&releases).(time.Time)
		seats[seat] = minutesUntil(now, t)
		heap.Push(&releases, t.Add(avg))
	}

	for i, p := range positions {
		if p >= 1 {
			etas[i] = seats[p]
		}
	}
	return etas
}

func seedReleases(now time.Time, currentFreeCount int, nextFree []time.Time) []time.Time {
	n := len(nextFree)
	free := min(max(currentFreeCount, 0), n)

	future := make([]time.Time, 0, n)
	for _, t := range nextFree {
		if t.After(now) {
			future = append(future, t)
		}
	}
	slices.SortFunc(future, func(a, b time.Time) int { return a.Compare(b) })
	if len(future) > n-free {
		future = future[:n-free]
	}

	out := make([]time.Time, 0, n)
	for i := 0; i < free; i++ {
		out = append(out, now)
	}
	out = append(out, future...)
	for len(out) < n {
		out = append(out, now)
	}
	return out
}

func minutesUntil(now, t time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	minutes := int(d / time.Minute)
	if d%time.Minute != 0 {
		minutes++
	}
	return minutes
}

type releaseHeap []time.Time

func (h releaseHeap) Len() int           { return len(h) }
func (h releaseHeap) Less(i, j int) bool { return h[i].Before(h[j]) }
func (h releaseHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *releaseHeap) Push(x any) { *h = append(*h, x.(time.Time)) }

func (h *releaseHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
