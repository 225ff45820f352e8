package disttree

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when IndexData or an accessor runs
	// before Init has loaded a shard.
	ErrNotInitialized = errors.New("table not initialized")

	// ErrInvalidSampleProbability is returned when the sample
	// probability falls outside (0, 1].
	ErrInvalidSampleProbability = errors.New("sample probability must be in (0, 1]")

	// ErrEmptyCandidateSet is returned when sampling produced no
	// candidate leaves at all (every shard in the group is empty).
	ErrEmptyCandidateSet = errors.New("no candidate leaves sampled")
)

// InvalidRankError indicates a rank query outside the group recorded
// at Init time.
type InvalidRankError struct {
	Rank  int
	Limit int
}

func (e *InvalidRankError) Error() string {
	return fmt.Sprintf("rank %d out of range (group size %d)", e.Rank, e.Limit)
}

// GroupMismatchError indicates that the processes entering a
// collective phase disagree on a structural parameter. The protocol
// would deadlock or corrupt data if it continued.
type GroupMismatchError struct {
	Field string
	Want  int
	Got   int
}

func (e *GroupMismatchError) Error() string {
	return fmt.Sprintf("group mismatch on %s: this process has %d, a peer has %d", e.Field, e.Want, e.Got)
}
