// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-yolox/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// ScoreThreshold drops candidates whose score is not strictly above it.
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
	// IoUThreshold suppresses a candidate whose IoU with a kept box is strictly above it.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// ClassAware restricts suppression to boxes of the same class.
	ClassAware bool `json:"class_aware" yaml:"class_aware"`
	// TopK caps the number of kept boxes. 0 keeps all.
	TopK int `json:"top_k" yaml:"top_k"`
}

// NMSIndices runs greedy Non-Maximum Suppression and returns the indices of the
// kept detections, highest score first.
//
// Candidates at or below ScoreThreshold are dropped. The rest are ordered by
// descending score with a stable sort, so equal scores keep their input order.
// Each candidate in turn is kept unless it overlaps an already kept box with an
// IoU above IoUThreshold.
//
// Arguments:
//   - detections: The candidates, in any order. Not modified.
//   - config: The NMS configuration.
//
// Returns:
//   - Indices into detections. Empty (non-nil) when nothing survives.
func NMSIndices(detections []Result, config NMSConfig) []int {
	order := make([]int, 0, len(detections))
	for i, d := range detections {
		if d.Score > config.ScoreThreshold {
			order = append(order, i)
		}
	}

	sort.SliceStable(order, func(a, b int) bool {
		return detections[order[a]].Score > detections[order[b]].Score
	})

	kept := make([]int, 0, len(order))
	for _, idx := range order {
		if config.TopK > 0 && len(kept) >= config.TopK {
			break
		}

		candidate := detections[idx]
		suppressed := false
		for _, k := range kept {
			anchor := detections[k]
			if config.ClassAware && anchor.Class != candidate.Class {
				continue
			}
			if images.CalculateIoU(anchor.Box, candidate.Box) > config.IoUThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, idx)
		}
	}

	return kept
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Arguments:
//   - detections: Slice of detections in any order.
//   - config: The NMS configuration.
//
// Returns:
//   - The kept detections sorted by descending confidence. If no detections are
//     provided, returns nil.
func ApplyGreedyNMS(detections []Result, config NMSConfig) []Result {
	if len(detections) == 0 {
		return nil
	}

	indices := NMSIndices(detections, config)
	filtered := make([]Result, len(indices))
	for i, idx := range indices {
		filtered[i] = detections[idx]
	}

	return filtered
}
