package vision

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"log/slog"

	// Register still-image decoders for payloads that are images, not video.
	_ "image/jpeg"
	_ "image/png"

	"github.com/your-org/veriface/internal/observability"
)

// SyntheticSource fabricates a frame sequence from non-video payloads. It
// decodes the upload as a still image (or falls back to a fixed gradient)
// and derives deterministic brightness-shifted variants so the liveness
// signals have motion to measure.
//
// This source exists for tests and local development only. Every use is
// logged at Warn and counted in telemetry, and config validation refuses
// it in production.
type SyntheticSource struct {
	Frames int
}

// brightnessStep is the per-frame channel offset between variants. Large
// enough that consecutive-frame motion clears the liveness threshold,
// small enough not to disturb texture signatures.
const brightnessStep = 8

func NewSyntheticSource(frames int) *SyntheticSource {
	if frames < 2 {
		frames = 6
	}
	return &SyntheticSource{Frames: frames}
}

func (s *SyntheticSource) Name() string { return "synthetic" }

func (s *SyntheticSource) Extract(ctx context.Context, video []byte) ([]image.Image, error) {
	observability.SyntheticFrameRequests.Inc()

	base, format, err := image.Decode(bytes.NewReader(video))
	if err != nil {
		base = gradientImage(640, 480)
		slog.Warn("synthetic frame source: payload not decodable, using gradient",
			"source", s.Name(), "bytes", len(video))
	} else {
		slog.Warn("synthetic frame source: decoded still image",
			"source", s.Name(), "format", format, "bytes", len(video))
	}

	frames := make([]image.Image, 0, s.Frames)
	frames = append(frames, base)
	for i := 1; i < s.Frames; i++ {
		frames = append(frames, shiftBrightness(base, uint8(i*brightnessStep)))
	}

	return frames, nil
}

// gradientImage is the deterministic stand-in frame for undecodable input.
func gradientImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// shiftBrightness returns a copy of img with every channel raised by delta,
// clamped at white. Uniform shifts read as motion between frames while
// leaving local texture variance intact.
func shiftBrightness(img image.Image, delta uint8) image.Image {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			out.SetRGBA(x, y, color.RGBA{
				R: clampAdd(uint8(r>>8), delta),
				G: clampAdd(uint8(g>>8), delta),
				B: clampAdd(uint8(b>>8), delta),
				A: uint8(a >> 8),
			})
		}
	}

	return out
}

func clampAdd(v, delta uint8) uint8 {
	sum := int(v) + int(delta)
	if sum > 255 {
		return 255
	}
	return uint8(sum)
}
