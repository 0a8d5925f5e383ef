package vision

import (
	"errors"
	"fmt"
	"image"
)

// ErrNoFaceDetected is returned when the backend finds no face in the
// representative frame.
var ErrNoFaceDetected = errors.New("no face detected")

// Detection is one face found by a recognition backend.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2 in pixel coordinates
	Confidence float32
}

// Area returns the bounding-box area in square pixels.
func (d Detection) Area() float32 {
	w := d.BBox[2] - d.BBox[0]
	h := d.BBox[3] - d.BBox[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Backend is a pluggable face-recognition capability: find faces, then
// turn one face into a fixed-length descriptor.
type Backend interface {
	Detect(img image.Image) ([]Detection, error)
	Embed(img image.Image, bbox [4]float32) ([]float32, error)
	Dim() int
	Close()
}

// Generator extracts a face embedding from a representative frame.
type Generator struct {
	backend Backend
}

func NewGenerator(backend Backend) *Generator {
	return &Generator{backend: backend}
}

// Dim returns the embedding dimension of the underlying backend.
func (g *Generator) Dim() int { return g.backend.Dim() }

// Generate detects faces in the frame and embeds the one with the largest
// bounding-box area. Zero detections is ErrNoFaceDetected, not a backend
// failure.
func (g *Generator) Generate(frame image.Image) ([]float32, error) {
	detections, err := g.backend.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	if len(detections) == 0 {
		return nil, ErrNoFaceDetected
	}

	best := detections[0]
	for _, d := range detections[1:] {
		if d.Area() > best.Area() {
			best = d
		}
	}

	vector, err := g.backend.Embed(frame, best.BBox)
	if err != nil {
		return nil, fmt.Errorf("embed face: %w", err)
	}

	return vector, nil
}
