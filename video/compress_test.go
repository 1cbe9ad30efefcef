package video

import (
	"strings"
	"testing"
)

func TestTargetVideoBitrateKbps(t *testing.T) {
	tests := []struct {
		name        string
		targetBytes int64
		duration    float64
		audioKbps   int
		want        int
	}{
		// 8 MiB over 60s: 8*1024*1024*8*0.9/60/1000 = 1006 kbps, minus 64 audio.
		{"8MiB one minute", 8 * 1024 * 1024, 60, 64, 942},
		{"long video floors at 1", 8 * 1024 * 1024, 100000, 64, 1},
		{"audio eats the budget", 1024, 60, 64, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := targetVideoBitrateKbps(tt.targetBytes, tt.duration, tt.audioKbps)
			if got != tt.want {
				t.Errorf("targetVideoBitrateKbps = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPickCrop(t *testing.T) {
	info := &Info{Duration: 10, Width: 1280, Height: 720, FPS: 30}
	c := NewCompressor(8*1024*1024, 4)

	tests := []struct {
		name    string
		samples []CropBox
		want    CropBox
		wantOK  bool
	}{
		{
			name:    "valid letterbox crop",
			samples: repeat(CropBox{Width: 1280, Height: 536, X: 0, Y: 92}, 10),
			want:    CropBox{Width: 1280, Height: 536, X: 0, Y: 92},
			wantOK:  true,
		},
		{
			name:    "odd dimensions rounded down to even",
			samples: repeat(CropBox{Width: 1279, Height: 537, X: 0, Y: 92}, 10),
			want:    CropBox{Width: 1278, Height: 536, X: 0, Y: 92},
			wantOK:  true,
		},
		{
			name:    "full frame rejected",
			samples: repeat(CropBox{Width: 1280, Height: 720, X: 0, Y: 0}, 10),
			wantOK:  false,
		},
		{
			name:    "out of bounds rejected",
			samples: repeat(CropBox{Width: 1280, Height: 700, X: 0, Y: 100}, 10),
			wantOK:  false,
		},
		{
			name:    "empty box rejected",
			samples: repeat(CropBox{Width: 0, Height: 400, X: 0, Y: 0}, 10),
			wantOK:  false,
		},
		{
			name:    "below support threshold rejected",
			samples: repeat(CropBox{Width: 1280, Height: 536, X: 0, Y: 92}, 3),
			wantOK:  false,
		},
		{
			name:    "no samples",
			samples: nil,
			wantOK:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.pickCrop(tt.samples, info)
			if ok != tt.wantOK {
				t.Fatalf("pickCrop ok = %v, want %v (got %v)", ok, tt.wantOK, got)
			}
			if ok && got != tt.want {
				t.Errorf("pickCrop = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeArgs(t *testing.T) {
	crop := CropBox{Width: 704, Height: 480, X: 12, Y: 118}

	pass1 := encodeArgs(1, "in.mp4", "/dev/null", 900, 64, "veryfast", "passlog", crop, true)
	joined1 := strings.Join(pass1, " ")
	if !strings.Contains(joined1, "crop=704:480:12:118") {
		t.Errorf("pass 1 args missing crop filter: %v", pass1)
	}
	if !strings.Contains(joined1, "-pass 1") || !strings.Contains(joined1, "-an -f null") {
		t.Errorf("pass 1 args = %v", pass1)
	}
	if strings.Contains(joined1, "aac") {
		t.Errorf("pass 1 must not encode audio: %v", pass1)
	}

	pass2 := encodeArgs(2, "in.mp4", "out.mp4", 900, 64, "veryfast", "passlog", CropBox{}, false)
	joined2 := strings.Join(pass2, " ")
	if strings.Contains(joined2, "crop=") {
		t.Errorf("uncropped pass 2 args contain crop filter: %v", pass2)
	}
	for _, want := range []string{"-pass 2", "-c:a aac", "-b:a 64k", "+faststart", "-b:v 900k"} {
		if !strings.Contains(joined2, want) {
			t.Errorf("pass 2 args missing %q: %v", want, pass2)
		}
	}
	if pass2[len(pass2)-1] != "out.mp4" {
		t.Errorf("output path must be last: %v", pass2)
	}
}
