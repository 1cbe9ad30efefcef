// Package video detects letterbox crop regions and re-encodes videos toward
// a size budget using ffmpeg.
package video

// CropBox is a candidate crop geometry for one frame. Per-frame detection is
// noisy, so a box only counts as real once enough independent frames agree.
type CropBox struct {
	Width  int
	Height int
	X      int
	Y      int
}

// FilterCrops treats crop estimation as a voting process: it counts the
// occurrences of each distinct box across the sampled observations and keeps
// every box seen at least minSupport times (inclusive). One-off misreads are
// discarded; several legitimate crop regions (an aspect change mid-video)
// all survive if each clears the threshold on its own. Survivors are
// returned in first-seen order; callers must not rely on any ordering.
func FilterCrops(samples []CropBox, minSupport int) []CropBox {
	if minSupport < 1 {
		minSupport = 1
	}
	counts := make(map[CropBox]int, len(samples))
	order := make([]CropBox, 0, 8)
	for _, box := range samples {
		if counts[box] == 0 {
			order = append(order, box)
		}
		counts[box]++
	}
	kept := order[:0]
	for _, box := range order {
		if counts[box] >= minSupport {
			kept = append(kept, box)
		}
	}
	return kept
}

// PrimaryCrop returns the single box to crop with: the most frequent
// survivor, ties broken by first appearance in the sample. ok is false when
// no box clears the threshold.
func PrimaryCrop(samples []CropBox, minSupport int) (CropBox, bool) {
	survivors := FilterCrops(samples, minSupport)
	if len(survivors) == 0 {
		return CropBox{}, false
	}
	counts := make(map[CropBox]int, len(samples))
	for _, box := range samples {
		counts[box]++
	}
	best := survivors[0]
	for _, box := range survivors[1:] {
		if counts[box] > counts[best] {
			best = box
		}
	}
	return best, true
}
