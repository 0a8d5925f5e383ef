package vision

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"

	"github.com/your-org/veriface/internal/observability"
)

// FrameExtractionError wraps any failure to turn uploaded bytes into frames.
type FrameExtractionError struct {
	Err error
}

func (e *FrameExtractionError) Error() string {
	return fmt.Sprintf("frame extraction: %v", e.Err)
}

func (e *FrameExtractionError) Unwrap() error { return e.Err }

// FrameSource decodes uploaded bytes into an ordered, non-empty frame
// sequence. Name identifies the source in logs and telemetry so synthetic
// output can never be mistaken for real decoding.
type FrameSource interface {
	Name() string
	Extract(ctx context.Context, video []byte) ([]image.Image, error)
}

// FFmpegSource shells out to ffmpeg to sample JPEG frames from the upload.
// The upload is piped through stdin; frames come back as a concatenated
// MJPEG stream on stdout.
type FFmpegSource struct {
	FPS       int
	Width     int
	MaxFrames int
}

func NewFFmpegSource(fps, width, maxFrames int) *FFmpegSource {
	return &FFmpegSource{FPS: fps, Width: width, MaxFrames: maxFrames}
}

func (s *FFmpegSource) Name() string { return "ffmpeg" }

func (s *FFmpegSource) Extract(ctx context.Context, video []byte) ([]image.Image, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-i", "pipe:0",
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", s.FPS, s.Width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdin = bytes.NewReader(video)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &FrameExtractionError{Err: fmt.Errorf("ffmpeg stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &FrameExtractionError{Err: fmt.Errorf("ffmpeg stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &FrameExtractionError{Err: fmt.Errorf("start ffmpeg: %w", err)}
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "output", scanner.Text())
		}
	}()

	frames, err := decodeJPEGStream(stdout, s.MaxFrames)

	// Drain and reap the process regardless of decode outcome; a decode
	// error must not leave a zombie ffmpeg behind.
	io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if err != nil {
		return nil, &FrameExtractionError{Err: err}
	}
	if len(frames) == 0 {
		if waitErr != nil {
			return nil, &FrameExtractionError{Err: fmt.Errorf("ffmpeg produced no frames: %w", waitErr)}
		}
		return nil, &FrameExtractionError{Err: fmt.Errorf("ffmpeg produced no frames")}
	}

	observability.FramesExtracted.WithLabelValues(s.Name()).Add(float64(len(frames)))
	return frames, nil
}

// decodeJPEGStream reads up to maxFrames JPEG images from a concatenated
// MJPEG stream.
func decodeJPEGStream(r io.Reader, maxFrames int) ([]image.Image, error) {
	reader := bufio.NewReaderSize(r, 512*1024)
	var frames []image.Image

	for maxFrames <= 0 || len(frames) < maxFrames {
		if err := findJPEGStart(reader); err != nil {
			if err == io.EOF {
				return frames, nil
			}
			return frames, err
		}

		data, err := readUntilJPEGEnd(reader)
		if err != nil {
			if err == io.EOF {
				// Stream ended mid-frame; keep what decoded so far.
				return frames, nil
			}
			return frames, err
		}

		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			slog.Warn("skip undecodable frame", "error", err, "bytes", len(data))
			continue
		}
		frames = append(frames, img)
	}

	return frames, nil
}

// findJPEGStart consumes input until the SOI marker FF D8.
func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

// readUntilJPEGEnd reads one JPEG body through the EOI marker FF D9.
func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		if len(data) > 10*1024*1024 {
			return nil, fmt.Errorf("jpeg frame exceeds 10MB")
		}
	}
}
