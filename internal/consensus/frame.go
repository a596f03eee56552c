package consensus

// Detection is one face reported by the identity oracle for a frame.
// Either Label/Distance are set by the oracle, or Embedding is set and a
// Labeler resolves it.
type Detection struct {
	BBox      []float64 `json:"bbox,omitempty"` // [x1, y1, x2, y2]
	Label     string    `json:"label,omitempty"`
	Distance  float64   `json:"distance,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Frame is the oracle output for one captured video frame.
type Frame struct {
	Detections []Detection `json:"detections"`
}

// Labeler maps a face embedding to the nearest registrant label and its distance.
type Labeler interface {
	Label(embedding []float32) (string, float64)
}

// Labels returns the frame's label set. A detection counts as recognized only
// if its distance is strictly below tolerance; everything else is reported as
// Unrecognized so the aggregator still knows a face was present.
func (f Frame) Labels(tolerance float64, labeler Labeler) []string {
	labels := make([]string, 0, len(f.Detections))
	for _, d := range f.Detections {
		label, dist := d.Label, d.Distance
		if label == "" && len(d.Embedding) > 0 && labeler != nil {
			label, dist = labeler.Label(d.Embedding)
		}
		if label == "" || label == Unrecognized || dist >= tolerance {
			labels = append(labels, Unrecognized)
			continue
		}
		labels = append(labels, label)
	}
	return labels
}
