// Package yolo runs a YOLOv8 ONNX model through the OpenCV DNN module and
// reports detections in source image pixels.
package yolo

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/fi-losopher/Perception/pkg/perception"
)

// ErrEmptyImage is returned when the image decodes to nothing.
var ErrEmptyImage = errors.New("yolo: empty image")

// Config holds YOLO detector configuration
type Config struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
}

// DefaultConfig returns defaults for YOLOv8n at 640x640.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.4,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// Detector uses YOLOv8 for general object detection
type Detector struct {
	net       gocv.Net
	cfg       Config
	classes   []string
	logger    *slog.Logger
	mu        sync.Mutex
	inputSize image.Point
}

// New loads the ONNX model at cfg.ModelPath.
func New(cfg Config, classes []string, logger *slog.Logger) (*Detector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("yolo: model file: %w", err)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("yolo: failed to load model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Detector{
		net:       net,
		cfg:       cfg,
		classes:   classes,
		logger:    logger.With("component", "yolo"),
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect finds objects in an encoded image (JPEG or PNG).
func (d *Detector) Detect(img []byte) ([]perception.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mat, err := gocv.IMDecode(img, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("yolo: decode image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, ErrEmptyImage
	}

	blob := gocv.BlobFromImage(mat, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// YOLOv8 output is [1, 4+classes, anchors]
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("yolo: read output: %w", err)
	}
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("yolo: unexpected output shape %v", sizes)
	}

	scaleX := float32(mat.Cols()) / float32(d.cfg.InputWidth)
	scaleY := float32(mat.Rows()) / float32(d.cfg.InputHeight)
	cands := decodeOutput(data, sizes[1], sizes[2], d.cfg.ConfidenceThresh, scaleX, scaleY)
	if len(cands) == 0 {
		return []perception.Detection{}, nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.box
		scores[i] = c.score
	}
	keep := gocv.NMSBoxes(boxes, scores, d.cfg.ConfidenceThresh, d.cfg.NMSThresh)

	dets := make([]perception.Detection, 0, len(keep))
	for _, idx := range keep {
		dets = append(dets, cands[idx].detection(d.classes))
	}
	d.logger.Debug("objects detected", "count", len(dets), "candidates", len(cands))
	return dets, nil
}

// Close releases the detector resources
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

type candidate struct {
	box     image.Rectangle
	score   float32
	classID int
}

func (c candidate) detection(classes []string) perception.Detection {
	return perception.Detection{
		Class:      className(classes, c.classID),
		Confidence: float64(c.score),
		Box: perception.Box{
			X:      float64(c.box.Min.X),
			Y:      float64(c.box.Min.Y),
			Width:  float64(c.box.Dx()),
			Height: float64(c.box.Dy()),
		},
	}
}

func className(classes []string, id int) string {
	if id >= 0 && id < len(classes) {
		return classes[id]
	}
	return fmt.Sprintf("class %d", id)
}

// decodeOutput reads a channel-major [features, anchors] tensor: rows 0-3
// are center x, center y, width and height in model input pixels and the
// remaining rows are class scores. Boxes are scaled to the source image.
func decodeOutput(data []float32, features, anchors int, thresh, scaleX, scaleY float32) []candidate {
	if features <= 4 || len(data) < features*anchors {
		return nil
	}

	var cands []candidate
	for i := 0; i < anchors; i++ {
		best, bestID := float32(0), -1
		for c := 4; c < features; c++ {
			if score := data[c*anchors+i]; score > best {
				best, bestID = score, c-4
			}
		}
		if bestID < 0 || best < thresh {
			continue
		}

		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		x1 := int((cx - w/2) * scaleX)
		y1 := int((cy - h/2) * scaleY)
		x2 := int((cx + w/2) * scaleX)
		y2 := int((cy + h/2) * scaleY)

		cands = append(cands, candidate{
			box:     image.Rect(x1, y1, x2, y2),
			score:   best,
			classID: bestID,
		})
	}
	return cands
}
