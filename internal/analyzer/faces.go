package analyzer

import (
	"fmt"
	"os"

	pigo "github.com/esimov/pigo/core"
)

// faceQualityThreshold filters out low-confidence cascade detections.
const faceQualityThreshold = 5.0

// faceDetector wraps a pigo classifier. A nil detector means no cascade file
// was configured and face counts stay at zero.
type faceDetector struct {
	classifier *pigo.Pigo
}

// newFaceDetector loads and unpacks the binary cascade at path.
func newFaceDetector(path string) (*faceDetector, error) {
	cascade, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read face cascade: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack face cascade: %w", err)
	}
	return &faceDetector{classifier: classifier}, nil
}

// count returns the number of clustered detections above the quality
// threshold in a grayscale frame.
func (d *faceDetector) count(gray []uint8, width, height int) int {
	if d == nil || d.classifier == nil {
		return 0
	}

	params := pigo.CascadeParams{
		MinSize:     20,
		MaxSize:     1000,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: gray,
			Rows:   height,
			Cols:   width,
			Dim:    width,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, 0.2)

	faces := 0
	for _, det := range dets {
		if det.Q > faceQualityThreshold {
			faces++
		}
	}
	return faces
}
