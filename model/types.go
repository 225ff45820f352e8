package model

import (
	"fmt"
)

// PointID is the provenance of a point: the rank that loaded it and its
// load-order index within that rank's source shard. It is assigned once
// at load time and travels with the point through every permutation and
// migration; it never changes.
type PointID struct {
	Rank  int32
	Index int32
}

// String returns a string representation of the PointID.
func (id PointID) String() string {
	return fmt.Sprintf("Point(%d:%d)", id.Rank, id.Index)
}

// InvalidPointID is the sentinel for unresolved provenance.
var InvalidPointID = PointID{Rank: -1, Index: -1}
