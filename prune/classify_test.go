package prune

import (
	"testing"

	"go.viam.com/test"
)

func TestClassifyVertices(t *testing.T) {
	dm := NewDensityMap([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	t.Run("strictly below", func(t *testing.T) {
		threshold, err := SelectThreshold(dm, 0.10)
		test.That(t, err, test.ShouldBeNil)
		mask := ClassifyVertices(dm, threshold)
		test.That(t, mask.Indices(), test.ShouldResemble, []int{0})
		test.That(t, mask.Len(), test.ShouldEqual, 1)
		test.That(t, mask.Size(), test.ShouldEqual, 10)
		test.That(t, mask.Contains(0), test.ShouldBeTrue)
		test.That(t, mask.Contains(1), test.ShouldBeFalse)
	})

	t.Run("minimum threshold marks nothing", func(t *testing.T) {
		threshold, err := SelectThreshold(dm, 0)
		test.That(t, err, test.ShouldBeNil)
		mask := ClassifyVertices(dm, threshold)
		test.That(t, mask.Len(), test.ShouldEqual, 0)
		test.That(t, mask.Indices(), test.ShouldBeEmpty)
	})

	t.Run("ties at the threshold survive", func(t *testing.T) {
		tied := NewDensityMap([]float64{1, 1, 1, 2, 3})
		threshold, err := SelectThreshold(tied, 0.4)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, threshold, test.ShouldEqual, 1.)
		test.That(t, ClassifyVertices(tied, threshold).Len(), test.ShouldEqual, 0)
	})

	t.Run("out of range", func(t *testing.T) {
		mask := ClassifyVertices(dm, 5)
		test.That(t, mask.Contains(-1), test.ShouldBeFalse)
		test.That(t, mask.Contains(10), test.ShouldBeFalse)
	})
}

func TestNewRemovalMask(t *testing.T) {
	mask := NewRemovalMask(5, 3, 1, 3, 7, -2)
	test.That(t, mask.Indices(), test.ShouldResemble, []int{1, 3})
	test.That(t, mask.Len(), test.ShouldEqual, 2)
	test.That(t, mask.Size(), test.ShouldEqual, 5)
}
