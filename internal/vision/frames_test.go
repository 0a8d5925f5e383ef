package vision

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}))
	return buf.Bytes()
}

func TestDecodeJPEGStream_ConcatenatedFrames(t *testing.T) {
	a := encodeJPEG(t, gradientImage(32, 32))
	b := encodeJPEG(t, gradientImage(48, 48))

	stream := append(append([]byte{}, a...), b...)

	frames, err := decodeJPEGStream(bytes.NewReader(stream), 0)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 32, frames[0].Bounds().Dx())
	assert.Equal(t, 48, frames[1].Bounds().Dx())
}

func TestDecodeJPEGStream_GarbagePrefix(t *testing.T) {
	payload := encodeJPEG(t, gradientImage(32, 32))
	stream := append([]byte{0x00, 0x01, 0x02, 0xFF, 0x00}, payload...)

	frames, err := decodeJPEGStream(bytes.NewReader(stream), 0)
	require.NoError(t, err)
	assert.Len(t, frames, 1)
}

func TestDecodeJPEGStream_MaxFramesCap(t *testing.T) {
	payload := encodeJPEG(t, gradientImage(32, 32))
	var stream []byte
	for i := 0; i < 5; i++ {
		stream = append(stream, payload...)
	}

	frames, err := decodeJPEGStream(bytes.NewReader(stream), 3)
	require.NoError(t, err)
	assert.Len(t, frames, 3)
}

func TestDecodeJPEGStream_Empty(t *testing.T) {
	frames, err := decodeJPEGStream(bytes.NewReader(nil), 0)
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestDecodeJPEGStream_TruncatedFrameKeepsEarlier(t *testing.T) {
	whole := encodeJPEG(t, gradientImage(32, 32))
	truncated := whole[:len(whole)/2]

	stream := append(append([]byte{}, whole...), truncated...)

	frames, err := decodeJPEGStream(bytes.NewReader(stream), 0)
	require.NoError(t, err)
	assert.Len(t, frames, 1)
}

func TestSyntheticSource_DecodesStillImage(t *testing.T) {
	payload := encodeJPEG(t, gradientImage(64, 64))

	src := NewSyntheticSource(4)
	frames, err := src.Extract(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, frames, 4)

	for _, f := range frames {
		assert.Equal(t, 64, f.Bounds().Dx())
	}
}

func TestSyntheticSource_FallbackGradient(t *testing.T) {
	src := NewSyntheticSource(0) // below minimum, bumped to default
	frames, err := src.Extract(context.Background(), []byte("definitely not an image"))
	require.NoError(t, err)
	assert.Len(t, frames, 6)
}

func TestSyntheticSource_Deterministic(t *testing.T) {
	src := NewSyntheticSource(3)
	payload := []byte("garbage payload")

	first, err := src.Extract(context.Background(), payload)
	require.NoError(t, err)
	second, err := src.Extract(context.Background(), payload)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		ra, ga, ba, _ := first[i].At(10, 10).RGBA()
		rb, gb, bb, _ := second[i].At(10, 10).RGBA()
		assert.Equal(t, ra, rb)
		assert.Equal(t, ga, gb)
		assert.Equal(t, ba, bb)
	}
}

func TestSyntheticSource_Name(t *testing.T) {
	assert.Equal(t, "synthetic", NewSyntheticSource(2).Name())
	assert.Equal(t, "ffmpeg", NewFFmpegSource(5, 640, 16).Name())
}
