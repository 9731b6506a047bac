package prune

// RemovalMask is the set of vertex indices marked for removal. It is immutable.
type RemovalMask struct {
	removed []bool
	count   int
}

// NewRemovalMask returns a mask over n vertices marking the given indices. Indices outside
// [0, n) are ignored.
func NewRemovalMask(n int, indices ...int) *RemovalMask {
	mask := &RemovalMask{removed: make([]bool, n)}
	for _, i := range indices {
		if i >= 0 && i < n && !mask.removed[i] {
			mask.removed[i] = true
			mask.count++
		}
	}
	return mask
}

// ClassifyVertices marks every vertex whose density is strictly below threshold.
func ClassifyVertices(densities *DensityMap, threshold float64) *RemovalMask {
	mask := &RemovalMask{removed: make([]bool, densities.Len())}
	for i, d := range densities.values {
		if d < threshold {
			mask.removed[i] = true
			mask.count++
		}
	}
	return mask
}

// Contains reports whether vertex i is marked. Indices outside the mask are not.
func (m *RemovalMask) Contains(i int) bool {
	return i >= 0 && i < len(m.removed) && m.removed[i]
}

// Len returns the number of marked vertices.
func (m *RemovalMask) Len() int {
	return m.count
}

// Size returns the number of vertices the mask covers.
func (m *RemovalMask) Size() int {
	return len(m.removed)
}

// Indices returns the marked vertices in ascending order.
func (m *RemovalMask) Indices() []int {
	indices := make([]int, 0, m.count)
	for i, r := range m.removed {
		if r {
			indices = append(indices, i)
		}
	}
	return indices
}
