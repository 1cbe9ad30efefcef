package video

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/gruzilkin/urmom-bot/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// minBitsPerPixel is the quality floor: below this the re-encode would be
// unwatchable mush, so compression gives up before burning CPU.
const minBitsPerPixel = 0.01

// Compressor re-encodes a video toward a target maximum size, cropping away
// detected letterbox bars first. Failure is a value: callers fall back to an
// alternate delivery path instead of aborting.
type Compressor struct {
	TargetSizeBytes  int64
	AudioBitrateKbps int
	Preset           string
	MinSupport       int
}

// NewCompressor applies the standard encode settings for a size budget.
func NewCompressor(targetSizeBytes int64, minSupport int) *Compressor {
	return &Compressor{
		TargetSizeBytes:  targetSizeBytes,
		AudioBitrateKbps: 64,
		Preset:           "veryfast",
		MinSupport:       minSupport,
	}
}

// Compress crops and two-pass re-encodes data toward the size budget.
// observations are raw per-frame crop samples; pass nil to have the
// compressor run crop detection itself. ok is false when encoding failed or
// the result still exceeds the budget.
func (c *Compressor) Compress(ctx context.Context, data []byte, filename string, observations []CropBox) (out []byte, ok bool) {
	ctx, span := telemetry.StartSpan(ctx, "video", "video.compress",
		attribute.Int("input_size", len(data)),
		attribute.String("filename", filename))
	defer span.End()

	tempDir, err := os.MkdirTemp("", "vidcomp_")
	if err != nil {
		slog.Warn("compress: temp dir", slog.Any("err", err))
		return nil, false
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".mp4"
	}
	inputPath := filepath.Join(tempDir, "input"+ext)
	outputPath := filepath.Join(tempDir, "output.mp4")
	passlogPrefix := filepath.Join(tempDir, "passlog")

	if err := os.WriteFile(inputPath, data, 0o600); err != nil {
		slog.Warn("compress: write input", slog.Any("err", err))
		return nil, false
	}

	info, err := Probe(ctx, inputPath)
	if err != nil {
		slog.Warn("compress: probe failed", slog.Any("err", err))
		telemetry.RecordError(span, err)
		return nil, false
	}

	videoKbps := targetVideoBitrateKbps(c.TargetSizeBytes, info.Duration, c.AudioBitrateKbps)
	span.SetAttributes(attribute.Int("video_bitrate_kbps", videoKbps))

	uncroppedBPP := float64(videoKbps) * 1000 / (float64(info.Width) * float64(info.Height) * info.FPS)
	if uncroppedBPP < minBitsPerPixel {
		span.SetAttributes(attribute.String("outcome", "quality_too_low"))
		return nil, false
	}

	if observations == nil {
		observations, err = DetectCrops(ctx, inputPath)
		if err != nil {
			slog.Warn("compress: crop detection failed, encoding uncropped", slog.Any("err", err))
			observations = nil
		}
	}
	crop, hasCrop := c.pickCrop(observations, info)
	if hasCrop {
		span.SetAttributes(
			attribute.Int("crop_w", crop.Width),
			attribute.Int("crop_h", crop.Height),
			attribute.Int("crop_x", crop.X),
			attribute.Int("crop_y", crop.Y),
		)
	}

	encode := func() error {
		if err := c.runEncodePass(ctx, 1, inputPath, os.DevNull, videoKbps, passlogPrefix, crop, hasCrop); err != nil {
			return err
		}
		return c.runEncodePass(ctx, 2, inputPath, outputPath, videoKbps, passlogPrefix, crop, hasCrop)
	}
	var encodeErr error
	telemetry.TimeFunc(telemetry.CompressDuration, func() { encodeErr = encode() })
	if encodeErr != nil {
		slog.Warn("compress: encode failed", slog.Any("err", encodeErr))
		telemetry.RecordError(span, encodeErr)
		return nil, false
	}

	out, err = os.ReadFile(outputPath)
	if err != nil {
		slog.Warn("compress: read output", slog.Any("err", err))
		return nil, false
	}
	span.SetAttributes(attribute.Int("output_size", len(out)))
	if int64(len(out)) > c.TargetSizeBytes {
		span.SetAttributes(attribute.String("outcome", "still_too_large"))
		return nil, false
	}
	span.SetAttributes(attribute.String("outcome", "success"))
	telemetry.SetSpanSuccess(span)
	return out, true
}

// pickCrop votes over the observations and sanity-checks the winner against
// the frame. Full-frame, empty and out-of-bounds boxes are rejected.
func (c *Compressor) pickCrop(observations []CropBox, info *Info) (CropBox, bool) {
	box, ok := PrimaryCrop(observations, c.MinSupport)
	if !ok {
		return CropBox{}, false
	}
	// libx264 wants even dimensions.
	box.Width -= box.Width % 2
	box.Height -= box.Height % 2

	switch {
	case box.Width <= 0 || box.Height <= 0:
		return CropBox{}, false
	case box.X+box.Width > info.Width || box.Y+box.Height > info.Height:
		return CropBox{}, false
	case box.Width == info.Width && box.Height == info.Height:
		// Nothing to trim.
		return CropBox{}, false
	}
	return box, true
}

// targetVideoBitrateKbps budgets the video stream: 90% of the byte budget
// over the duration, minus the audio stream, floored at 1 kbps.
func targetVideoBitrateKbps(targetBytes int64, duration float64, audioKbps int) int {
	kbps := int(float64(targetBytes)*8*0.9/duration/1000) - audioKbps
	if kbps < 1 {
		kbps = 1
	}
	return kbps
}

func (c *Compressor) runEncodePass(ctx context.Context, pass int, inputPath, outputPath string, videoKbps int, passlogPrefix string, crop CropBox, hasCrop bool) error {
	ctx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()

	args := encodeArgs(pass, inputPath, outputPath, videoKbps, c.AudioBitrateKbps, c.Preset, passlogPrefix, crop, hasCrop)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg pass %d: %w: %s", pass, err, lastLine(stderr.Bytes()))
	}
	return nil
}

// encodeArgs builds the two-pass libx264 command line. Pass 1 measures into
// the passlog, pass 2 writes the final mp4 with aac audio and faststart.
func encodeArgs(pass int, inputPath, outputPath string, videoKbps, audioKbps int, preset, passlogPrefix string, crop CropBox, hasCrop bool) []string {
	args := []string{"-y", "-i", inputPath}
	if hasCrop {
		args = append(args, "-vf", fmt.Sprintf("crop=%d:%d:%d:%d", crop.Width, crop.Height, crop.X, crop.Y))
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", preset,
		"-b:v", fmt.Sprintf("%dk", videoKbps),
		"-pass", fmt.Sprintf("%d", pass),
		"-passlogfile", passlogPrefix,
	)
	if pass == 1 {
		args = append(args, "-an", "-f", "null")
	} else {
		args = append(args, "-c:a", "aac", "-b:a", fmt.Sprintf("%dk", audioKbps), "-movflags", "+faststart")
	}
	return append(args, outputPath)
}

func lastLine(out []byte) string {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	if len(lines) == 0 {
		return ""
	}
	return string(lines[len(lines)-1])
}
