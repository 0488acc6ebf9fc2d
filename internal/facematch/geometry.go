package facematch

// BBoxArea returns the area of a [x1, y1, x2, y2] box, or 0 when the box is malformed.
func BBoxArea(bbox []float64) float64 {
	if len(bbox) != 4 {
		return 0
	}
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Candidate is one detected face before a single winner is picked.
type Candidate struct {
	Embedding []float32
	BBox      []float64 // [x1, y1, x2, y2]
	Score     float64
}

// SelectBest returns the index of the highest-scoring candidate. Ties go to
// the larger box. Returns -1 for an empty slice.
func SelectBest(candidates []Candidate) int {
	best := -1
	for i, c := range candidates {
		if best < 0 {
			best = i
			continue
		}
		b := candidates[best]
		if c.Score > b.Score || (c.Score == b.Score && BBoxArea(c.BBox) > BBoxArea(b.BBox)) {
			best = i
		}
	}
	return best
}
