package prune

import (
	"math"
	"sort"
)

// DefaultQuantile is the fraction of lowest-density vertices targeted for removal unless
// configured.
const DefaultQuantile = 0.10

// SelectThreshold returns the density at rank floor(q*N) of the ascending scores. q must
// be in [0, 1). The map is not modified.
func SelectThreshold(densities *DensityMap, q float64) (float64, error) {
	if densities == nil || densities.Len() == 0 {
		return 0, &EmptyMeshError{}
	}
	if err := validateQuantile(q); err != nil {
		return 0, err
	}

	sorted := densities.Values()
	sort.Float64s(sorted)

	n := len(sorted)
	index := int(math.Floor(q * float64(n)))
	if index >= n {
		index = n - 1
	}
	return sorted[index], nil
}

func validateQuantile(q float64) error {
	if math.IsNaN(q) || q < 0 || q >= 1 {
		return &InvalidParameterError{Name: "quantile", Value: q, Reason: "must be in [0, 1)"}
	}
	return nil
}
