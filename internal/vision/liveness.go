package vision

import (
	"image"
	"math"

	"github.com/your-org/veriface/internal/models"
)

// LivenessMethod tags results with the analysis strategy that produced them.
const LivenessMethod = "motion_texture_analysis"

// Signal weights. Motion and texture dominate; color acts as a tie-breaker
// for replayed footage with stable lighting.
const (
	motionWeight  = 0.4
	textureWeight = 0.4
	colorWeight   = 0.2
)

// Pixel sampling strides. Liveness runs on the request path, so the signals
// are computed on coarse grids rather than every pixel.
const (
	motionSampleStep  = 4
	textureSampleStep = 2
	colorSampleStep   = 4
)

// LivenessDetector scores frame sequences for live-subject signals. The
// computation is a pure function of the input frames: identical frames
// always produce identical scores.
type LivenessDetector struct {
	Threshold float64
}

func NewLivenessDetector(threshold float64) *LivenessDetector {
	return &LivenessDetector{Threshold: threshold}
}

// Detect combines motion, texture-consistency, and color-consistency
// signals into one weighted score in [0, 1]. Fewer than two frames cannot
// carry temporal signals and score zero without being an error.
func (d *LivenessDetector) Detect(frames []image.Image) *models.LivenessResult {
	result := &models.LivenessResult{Method: LivenessMethod}

	if len(frames) < 2 {
		return result
	}

	motion := motionScore(frames)
	texture := textureConsistency(frames)
	color := colorConsistency(frames)

	score := motion*motionWeight + texture*textureWeight + color*colorWeight

	result.Score = score
	result.Confidence = math.Min(score, 1.0)
	result.IsLive = score >= d.Threshold

	return result
}

// motionScore is the average normalized pixel difference between
// consecutive frames, scaled so that modest head movement saturates it.
// Higher motion means more likely live.
func motionScore(frames []image.Image) float64 {
	total := 0.0
	pairs := 0

	for i := 1; i < len(frames); i++ {
		total += frameMotion(frames[i-1], frames[i])
		pairs++
	}

	if pairs == 0 {
		return 0
	}

	return math.Min(total/float64(pairs)*10.0, 1.0)
}

func frameMotion(a, b image.Image) float64 {
	bounds := a.Bounds()
	if !bounds.Eq(b.Bounds()) {
		return 0
	}

	totalDiff := 0.0
	pixels := 0

	for y := bounds.Min.Y; y < bounds.Max.Y; y += motionSampleStep {
		for x := bounds.Min.X; x < bounds.Max.X; x += motionSampleStep {
			r1, g1, b1, _ := a.At(x, y).RGBA()
			r2, g2, b2, _ := b.At(x, y).RGBA()

			totalDiff += math.Abs(float64(r1)-float64(r2)) +
				math.Abs(float64(g1)-float64(g2)) +
				math.Abs(float64(b1)-float64(b2))
			pixels++
		}
	}

	if pixels == 0 {
		return 0
	}

	return totalDiff / float64(pixels) / 65535.0
}

// textureConsistency computes a local-variance texture signature per frame
// and rewards sequences whose signature stays stable. A flat printout waved
// in front of the camera produces large signature swings as it tilts.
// This is a policy choice for this detector, not a universal liveness truth.
func textureConsistency(frames []image.Image) float64 {
	signatures := make([]float64, len(frames))
	for i, frame := range frames {
		signatures[i] = frameTexture(frame)
	}

	variance := sampleVariance(signatures)

	return 1.0 - math.Min(variance*100.0, 1.0)
}

func frameTexture(img image.Image) float64 {
	bounds := img.Bounds()
	totalVariance := 0.0
	pixels := 0

	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y += textureSampleStep {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x += textureSampleStep {
			cr, cg, cb, _ := img.At(x, y).RGBA()

			variance := 0.0
			neighbors := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nr, ng, nb, _ := img.At(x+dx, y+dy).RGBA()
					variance += sq(float64(cr)-float64(nr)) +
						sq(float64(cg)-float64(ng)) +
						sq(float64(cb)-float64(nb))
					neighbors++
				}
			}

			if neighbors > 0 {
				totalVariance += variance / float64(neighbors)
				pixels++
			}
		}
	}

	if pixels == 0 {
		return 0
	}

	// Scale into a workable range; 16-bit channel variances are huge.
	return totalVariance / float64(pixels) / 1e10
}

// colorConsistency rewards stable mean color across frames: steady
// lighting on a live subject versus shifting glare on a replayed screen.
func colorConsistency(frames []image.Image) float64 {
	means := make([][3]float64, len(frames))
	for i, frame := range frames {
		means[i] = meanColor(frame)
	}

	center := [3]float64{}
	for _, m := range means {
		center[0] += m[0]
		center[1] += m[1]
		center[2] += m[2]
	}
	for c := range center {
		center[c] /= float64(len(means))
	}

	variance := 0.0
	for _, m := range means {
		variance += sq(m[0]-center[0]) + sq(m[1]-center[1]) + sq(m[2]-center[2])
	}
	variance /= float64(len(means))

	return 1.0 - math.Min(variance*10.0, 1.0)
}

func meanColor(img image.Image) [3]float64 {
	bounds := img.Bounds()
	var r, g, b float64
	pixels := 0

	for y := bounds.Min.Y; y < bounds.Max.Y; y += colorSampleStep {
		for x := bounds.Min.X; x < bounds.Max.X; x += colorSampleStep {
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r += float64(pr) / 65535.0
			g += float64(pg) / 65535.0
			b += float64(pb) / 65535.0
			pixels++
		}
	}

	if pixels == 0 {
		return [3]float64{}
	}

	return [3]float64{r / float64(pixels), g / float64(pixels), b / float64(pixels)}
}

func sampleVariance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += sq(v - mean)
	}
	return variance / float64(len(values))
}

func sq(x float64) float64 { return x * x }
