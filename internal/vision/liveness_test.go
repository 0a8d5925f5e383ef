package vision

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidFrame(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestLivenessDetect_TooFewFrames(t *testing.T) {
	d := NewLivenessDetector(0.85)

	for _, frames := range [][]image.Image{
		nil,
		{solidFrame(64, 64, color.RGBA{100, 100, 100, 255})},
	} {
		result := d.Detect(frames)
		assert.False(t, result.IsLive)
		assert.Equal(t, 0.0, result.Score)
		assert.Equal(t, LivenessMethod, result.Method)
	}
}

func TestLivenessDetect_StaticFramesNotLive(t *testing.T) {
	d := NewLivenessDetector(0.85)

	frame := solidFrame(64, 64, color.RGBA{100, 100, 100, 255})
	frames := []image.Image{frame, frame, frame, frame}

	result := d.Detect(frames)

	// Identical frames have zero motion. Texture and color stay perfectly
	// consistent, so the score lands at exactly the non-motion weight sum.
	assert.False(t, result.IsLive)
	assert.InDelta(t, textureWeight+colorWeight, result.Score, 1e-6)
}

func TestLivenessDetect_BrightnessMotionIsLive(t *testing.T) {
	d := NewLivenessDetector(0.85)

	base := gradientImage(64, 64)
	frames := []image.Image{base}
	for i := 1; i < 6; i++ {
		frames = append(frames, shiftBrightness(base, uint8(i*brightnessStep)))
	}

	result := d.Detect(frames)

	assert.True(t, result.IsLive, "score was %f", result.Score)
	assert.GreaterOrEqual(t, result.Score, 0.85)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}

func TestLivenessDetect_Deterministic(t *testing.T) {
	d := NewLivenessDetector(0.85)

	base := gradientImage(64, 64)
	frames := []image.Image{base, shiftBrightness(base, brightnessStep), shiftBrightness(base, 2*brightnessStep)}

	first := d.Detect(frames)
	second := d.Detect(frames)

	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.IsLive, second.IsLive)
}

func TestLivenessDetect_SyntheticFramesPass(t *testing.T) {
	src := NewSyntheticSource(6)
	frames, err := src.Extract(context.Background(), []byte("not an image"))
	require.NoError(t, err)
	require.Len(t, frames, 6)

	result := NewLivenessDetector(0.85).Detect(frames)
	assert.True(t, result.IsLive, "score was %f", result.Score)
}
