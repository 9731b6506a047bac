package prune

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func oneToTen() *DensityMap {
	return NewDensityMap([]float64{7, 3, 10, 1, 5, 2, 9, 4, 8, 6})
}

func TestSelectThreshold(t *testing.T) {
	for _, tc := range []struct {
		q    float64
		want float64
	}{
		{0, 1},
		{0.05, 1},
		{0.10, 2},
		{0.25, 3},
		{0.5, 6},
		{0.95, 10},
		{math.Nextafter(1, 0), 10},
	} {
		dm := oneToTen()
		got, err := SelectThreshold(dm, tc.q)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, tc.want)
		test.That(t, dm.Values(), test.ShouldResemble, oneToTen().Values())
	}
}

func TestSelectThresholdRepeatable(t *testing.T) {
	dm := oneToTen()
	first, err := SelectThreshold(dm, 0.3)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 3; i++ {
		again, err := SelectThreshold(dm, 0.3)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, again, test.ShouldEqual, first)
	}
}

func TestSelectThresholdErrors(t *testing.T) {
	_, err := SelectThreshold(NewDensityMap(nil), 0.1)
	var emptyErr *EmptyMeshError
	test.That(t, errors.As(err, &emptyErr), test.ShouldBeTrue)

	_, err = SelectThreshold(nil, 0.1)
	test.That(t, errors.As(err, &emptyErr), test.ShouldBeTrue)

	for _, q := range []float64{-0.01, 1, 1.5, math.NaN(), math.Inf(1)} {
		_, err := SelectThreshold(oneToTen(), q)
		var paramErr *InvalidParameterError
		test.That(t, errors.As(err, &paramErr), test.ShouldBeTrue)
		test.That(t, paramErr.Name, test.ShouldEqual, "quantile")
		test.That(t, err.Error(), test.ShouldContainSubstring, "[0, 1)")
	}
}
