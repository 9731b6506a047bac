package prune

import "fmt"

// EmptyMeshError is returned when there is nothing to prune: the mesh has no vertices,
// or no polygons to filter.
type EmptyMeshError struct {
	Vertices int
	Polygons int
}

func (e *EmptyMeshError) Error() string {
	return fmt.Sprintf("cannot prune an empty mesh (%d vertices, %d polygons)", e.Vertices, e.Polygons)
}

// InvalidParameterError reports a parameter outside its legal range.
type InvalidParameterError struct {
	Name   string
	Value  interface{}
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Name, e.Value, e.Reason)
}

// DegenerateNeighborhoodWarning marks a vertex whose neighbors, if any, all coincide with
// it. Its density is 0. This is not an error; such vertices are reported and kept in the
// density map.
type DegenerateNeighborhoodWarning struct {
	Vertex    int
	Neighbors int
}

func (w DegenerateNeighborhoodWarning) String() string {
	return fmt.Sprintf("vertex %d has no neighbor at non-zero distance (%d neighbors)", w.Vertex, w.Neighbors)
}
