package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// subprocessTimeout bounds every ffmpeg/ffprobe invocation.
const subprocessTimeout = 300 * time.Second

// Info is the subset of stream metadata the compressor needs.
type Info struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Probe runs ffprobe on path and parses duration and first video stream
// geometry. A missing or non-positive duration is an error.
func Probe(ctx context.Context, path string) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "v:0",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	info, err := parseProbeOutput(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("ffprobe output: %w", err)
	}
	return info, nil
}

func parseProbeOutput(data []byte) (*Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	duration, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil {
		return nil, fmt.Errorf("parse duration %q: %w", out.Format.Duration, err)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("invalid duration %v", duration)
	}
	if len(out.Streams) == 0 {
		return nil, fmt.Errorf("no video stream")
	}
	stream := out.Streams[0]
	if stream.Width <= 0 || stream.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", stream.Width, stream.Height)
	}
	fps, err := parseFrameRate(stream.RFrameRate)
	if err != nil {
		return nil, err
	}
	return &Info{Duration: duration, Width: stream.Width, Height: stream.Height, FPS: fps}, nil
}

// parseFrameRate parses ffprobe's rational frame rate ("30000/1001").
func parseFrameRate(s string) (float64, error) {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return 0, fmt.Errorf("parse frame rate %q", s)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frame rate %q: %w", s, err)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("parse frame rate %q", s)
	}
	return n / d, nil
}
