package video

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
)

var cropLinePattern = regexp.MustCompile(`crop=(\d+):(\d+):(\d+):(\d+)`)

// DetectCrops runs ffmpeg's cropdetect filter over the file and returns the
// ordered per-frame crop observations parsed from its stderr. The sample is
// raw and noisy; run it through FilterCrops or PrimaryCrop before trusting
// any box.
func DetectCrops(ctx context.Context, path string) ([]CropBox, error) {
	ctx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", path,
		"-vf", "cropdetect=limit=16:round=2:reset=0",
		"-an",
		"-f", "null",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("cropdetect: %w", err)
	}
	return ParseCropLines(stderr.Bytes()), nil
}

// ParseCropLines extracts crop=w:h:x:y observations from ffmpeg stderr,
// preserving frame order.
func ParseCropLines(output []byte) []CropBox {
	matches := cropLinePattern.FindAllSubmatch(output, -1)
	boxes := make([]CropBox, 0, len(matches))
	for _, m := range matches {
		w, _ := strconv.Atoi(string(m[1]))
		h, _ := strconv.Atoi(string(m[2]))
		x, _ := strconv.Atoi(string(m[3]))
		y, _ := strconv.Atoi(string(m[4]))
		boxes = append(boxes, CropBox{Width: w, Height: h, X: x, Y: y})
	}
	return boxes
}
