package goedxcore

import (
	"math"
	"sort"
)

// Window is a closed range on the energy axis.
type Window struct {
	Lo, Hi float64
}

// Intersects reports whether the windows share a point; touching ends count.
func (w Window) Intersects(o Window) bool {
	return (o.Lo <= w.Lo && w.Lo <= o.Hi) || (o.Lo <= w.Hi && w.Hi <= o.Hi) ||
		(w.Lo <= o.Lo && o.Lo <= w.Hi)
}

// Interval is one independent refinement region and the peaks refined jointly in it.
type Interval struct {
	Lo, Hi float64
	Peaks  []int
}

type taggedWindow struct {
	Window
	peaks []int
}

// mergeWindows unions intersecting windows until none intersect. The result is
// sorted by Lo and does not depend on the input order.
func mergeWindows(ws []taggedWindow) []taggedWindow {
	sorted := append([]taggedWindow(nil), ws...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Lo < sorted[j].Lo })

	var res []taggedWindow
	for _, w := range sorted {
		if n := len(res); n > 0 && res[n-1].Intersects(w.Window) {
			last := &res[n-1]
			last.Lo = math.Min(last.Lo, w.Lo)
			last.Hi = math.Max(last.Hi, w.Hi)
			last.peaks = append(last.peaks, w.peaks...)
			continue
		}
		res = append(res, taggedWindow{Window: w.Window, peaks: append([]int(nil), w.peaks...)})
	}
	return res
}

// Partition splits a spectrum's peaks into refinement intervals. Peaks whose overlap
// windows chain together form a group; within a group, peaks whose base windows
// intersect are refined together over the union of those base windows. Every peak
// index appears in exactly one interval.
func Partition(peaks []*Peak) []Interval {
	overlap := make([]taggedWindow, len(peaks))
	for i, p := range peaks {
		lo, hi := p.OverlapWindow()
		overlap[i] = taggedWindow{Window: Window{lo, hi}, peaks: []int{i}}
	}

	var res []Interval
	for _, group := range mergeWindows(overlap) {
		base := make([]taggedWindow, 0, len(group.peaks))
		for _, i := range group.peaks {
			lo, hi := peaks[i].BaseWindow()
			base = append(base, taggedWindow{Window: Window{lo, hi}, peaks: []int{i}})
		}
		for _, w := range mergeWindows(base) {
			sort.Ints(w.peaks)
			res = append(res, Interval{Lo: w.Lo, Hi: w.Hi, Peaks: w.peaks})
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Lo < res[j].Lo })
	return res
}
