package vision

import (
	"fmt"
	"image"
	"math"
	"path/filepath"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXBackend is the production face-recognition backend: RetinaFace
// (det_10g) for detection and ArcFace (w600k_r50) for embeddings, both via
// ONNX Runtime. Sessions reuse pre-allocated tensors, so inference is
// serialized under a mutex; concurrent requests queue here rather than
// race on tensor buffers.
type ONNXBackend struct {
	mu       sync.Mutex
	detector *onnxDetector
	embedder *onnxEmbedder
}

// NewONNXBackend loads both models from modelsDir.
func NewONNXBackend(modelsDir string, detectionThreshold float32) (*ONNXBackend, error) {
	det, err := newONNXDetector(filepath.Join(modelsDir, "det_10g.onnx"), detectionThreshold)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	emb, err := newONNXEmbedder(filepath.Join(modelsDir, "w600k_r50.onnx"))
	if err != nil {
		det.close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &ONNXBackend{detector: det, embedder: emb}, nil
}

func (b *ONNXBackend) Dim() int { return b.embedder.dim }

func (b *ONNXBackend) Detect(img image.Image) ([]Detection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bounds := img.Bounds()
	input := imageToCHW(img, b.detector.inputW, b.detector.inputH, 127.5, 128.0)
	return b.detector.detect(input, bounds.Dx(), bounds.Dy())
}

func (b *ONNXBackend) Embed(img image.Image, bbox [4]float32) ([]float32, error) {
	crop := cropFace(img, bbox)
	if crop == nil {
		return nil, fmt.Errorf("empty face crop")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	input := imageToCHW(crop, b.embedder.inputW, b.embedder.inputH, 127.5, 127.5)
	return b.embedder.extract(input)
}

func (b *ONNXBackend) Close() {
	if b.detector != nil {
		b.detector.close()
	}
	if b.embedder != nil {
		b.embedder.close()
	}
}

// --- detector ---

// RetinaFace det_10g anchor layout: two anchors per cell at strides 8/16/32
// on a 640x640 input, with per-stride score and bbox heads.
var detectorStrides = []int{8, 16, 32}

const anchorsPerCell = 2

type onnxDetector struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	scoreTensors []*ort.Tensor[float32]
	bboxTensors  []*ort.Tensor[float32]
	threshold    float32
	inputW       int
	inputH       int
}

func newONNXDetector(modelPath string, threshold float32) (*onnxDetector, error) {
	const inputW, inputH = 640, 640

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, inputH, inputW))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// Output names and row counts per stride for det_10g. The landmark
	// heads (454/477/500) are not requested; verification only needs
	// boxes and scores.
	scoreNames := []string{"448", "471", "494"}
	bboxNames := []string{"451", "474", "497"}

	var (
		scoreTensors []*ort.Tensor[float32]
		bboxTensors  []*ort.Tensor[float32]
		outputNames  []string
		outputValues []ort.Value
	)

	destroyAll := func() {
		inputTensor.Destroy()
		for _, t := range scoreTensors {
			t.Destroy()
		}
		for _, t := range bboxTensors {
			t.Destroy()
		}
	}

	for i, stride := range detectorStrides {
		rows := int64(inputW / stride * inputH / stride * anchorsPerCell)

		st, err := ort.NewEmptyTensor[float32](ort.NewShape(rows, 1))
		if err != nil {
			destroyAll()
			return nil, fmt.Errorf("create score tensor stride %d: %w", stride, err)
		}
		scoreTensors = append(scoreTensors, st)

		bt, err := ort.NewEmptyTensor[float32](ort.NewShape(rows, 4))
		if err != nil {
			destroyAll()
			return nil, fmt.Errorf("create bbox tensor stride %d: %w", stride, err)
		}
		bboxTensors = append(bboxTensors, bt)

		outputNames = append(outputNames, scoreNames[i])
		outputValues = append(outputValues, st)
	}
	for i := range detectorStrides {
		outputNames = append(outputNames, bboxNames[i])
		outputValues = append(outputValues, bboxTensors[i])
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		nil,
	)
	if err != nil {
		destroyAll()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &onnxDetector{
		session:      session,
		inputTensor:  inputTensor,
		scoreTensors: scoreTensors,
		bboxTensors:  bboxTensors,
		threshold:    threshold,
		inputW:       inputW,
		inputH:       inputH,
	}, nil
}

func (d *onnxDetector) detect(input []float32, origW, origH int) ([]Detection, error) {
	copy(d.inputTensor.GetData(), input)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	detections := d.decodeOutputs(origW, origH)
	return suppressOverlaps(detections, 0.4), nil
}

// decodeOutputs walks the anchor grid at each stride and converts
// above-threshold rows into pixel-space boxes on the original image.
func (d *onnxDetector) decodeOutputs(origW, origH int) []Detection {
	var detections []Detection

	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	for si, stride := range detectorStrides {
		scores := d.scoreTensors[si].GetData()
		bboxes := d.bboxTensors[si].GetData()

		cells := d.inputW / stride
		st := float32(stride)

		idx := 0
		for cy := 0; cy < cells; cy++ {
			for cx := 0; cx < cells; cx++ {
				for a := 0; a < anchorsPerCell; a++ {
					if scores[idx] >= d.threshold {
						anchorX := float32(cx) * st
						anchorY := float32(cy) * st

						// Box head outputs anchor-relative edge
						// distances in stride units.
						x1 := (anchorX - bboxes[idx*4+0]*st) * scaleW
						y1 := (anchorY - bboxes[idx*4+1]*st) * scaleH
						x2 := (anchorX + bboxes[idx*4+2]*st) * scaleW
						y2 := (anchorY + bboxes[idx*4+3]*st) * scaleH

						detections = append(detections, Detection{
							BBox: [4]float32{
								clampf(x1, 0, float32(origW)),
								clampf(y1, 0, float32(origH)),
								clampf(x2, 0, float32(origW)),
								clampf(y2, 0, float32(origH)),
							},
							Confidence: scores[idx],
						})
					}
					idx++
				}
			}
		}
	}

	return detections
}

func (d *onnxDetector) close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.scoreTensors {
		t.Destroy()
	}
	for _, t := range d.bboxTensors {
		t.Destroy()
	}
}

// --- embedder ---

type onnxEmbedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	dim          int
}

func newONNXEmbedder(modelPath string) (*onnxEmbedder, error) {
	// ArcFace w600k_r50: 112x112 input, 512-dim output.
	const inputW, inputH, dim = 112, 112, 512

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, inputH, inputW))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, dim))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &onnxEmbedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
		dim:          dim,
	}, nil
}

func (e *onnxEmbedder) extract(input []float32) ([]float32, error) {
	copy(e.inputTensor.GetData(), input)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	vector := make([]float32, e.dim)
	copy(vector, e.outputTensor.GetData())
	Normalize(vector)

	return vector, nil
}

func (e *onnxEmbedder) close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// --- shared image helpers ---

// imageToCHW resizes img to targetW x targetH and converts it to CHW
// float32 with (pixel - mean) / std normalization applied per channel.
func imageToCHW(img image.Image, targetW, targetH int, mean, std float32) []float32 {
	resized := resizeNearest(img, targetW, targetH)
	bounds := resized.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	data := make([]float32, 3*h*w)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()

			idx := y*w + x
			data[0*h*w+idx] = (float32(r>>8) - mean) / std
			data[1*h*w+idx] = (float32(g>>8) - mean) / std
			data[2*h*w+idx] = (float32(b>>8) - mean) / std
		}
	}

	return data
}

// resizeNearest is a nearest-neighbour resize; fast and sufficient for
// model input.
func resizeNearest(img image.Image, targetW, targetH int) image.Image {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	for y := 0; y < targetH; y++ {
		for x := 0; x < targetW; x++ {
			dst.Set(x, y, img.At(bounds.Min.X+x*srcW/targetW, bounds.Min.Y+y*srcH/targetH))
		}
	}
	return dst
}

// cropFace extracts the face region with 10% padding on each side,
// clamped to the image. Returns nil for degenerate boxes.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	bounds := img.Bounds()

	x1 := int(bbox[0])
	y1 := int(bbox[1])
	x2 := int(bbox[2])
	y2 := int(bbox[3])

	w := x2 - x1
	h := y2 - y1
	if w <= 0 || h <= 0 {
		return nil
	}

	x1 -= w / 10
	y1 -= h / 10
	x2 += w / 10
	y2 += h / 10

	x1 = clampi(x1, bounds.Min.X, bounds.Max.X)
	y1 = clampi(y1, bounds.Min.Y, bounds.Max.Y)
	x2 = clampi(x2, bounds.Min.X, bounds.Max.X)
	y2 = clampi(y2, bounds.Min.Y, bounds.Max.Y)

	if x2-x1 <= 0 || y2-y1 <= 0 {
		return nil
	}

	crop := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	for cy := y1; cy < y2; cy++ {
		for cx := x1; cx < x2; cx++ {
			crop.Set(cx-x1, cy-y1, img.At(cx, cy))
		}
	}
	return crop
}

// suppressOverlaps performs non-maximum suppression by IoU.
func suppressOverlaps(detections []Detection, iouThreshold float32) []Detection {
	if len(detections) == 0 {
		return detections
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	keep := make([]bool, len(detections))
	for i := range keep {
		keep[i] = true
	}

	for i := range detections {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(detections); j++ {
			if keep[j] && iou(detections[i].BBox, detections[j].BBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []Detection
	for i, d := range detections {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	intersection := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))

	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - intersection

	if union <= 0 {
		return 0
	}
	return intersection / union
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampi(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
