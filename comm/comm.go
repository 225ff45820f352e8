package comm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrInvalidRank is returned when a peer rank is outside the group.
	ErrInvalidRank = errors.New("comm: invalid rank")
	// ErrSelfMessage is returned when a rank addresses itself.
	ErrSelfMessage = errors.New("comm: cannot send to self")
)

// Group is a fixed set of cooperating ranks.
//
// All collective operations (Barrier, Broadcast, Gather, AllGather)
// must be called by every rank of the group, in the same order.
type Group interface {
	// Rank returns this process's rank in [0, Size).
	Rank() int

	// Size returns the number of ranks in the group.
	Size() int

	// Send enqueues a copy of payload for rank to. It does not wait
	// for the receiver.
	Send(ctx context.Context, to, tag int, payload []byte) error

	// Isend enqueues payload without copying and returns a Request
	// that completes once the receiver has consumed the message. The
	// payload must remain valid and unmodified until then.
	Isend(ctx context.Context, to, tag int, payload []byte) (*Request, error)

	// Recv blocks until a message from rank from with the given tag
	// arrives and returns its payload.
	Recv(ctx context.Context, from, tag int) ([]byte, error)

	// Barrier blocks until every rank of the group has entered it.
	Barrier(ctx context.Context) error

	// Broadcast distributes root's payload to every rank and returns
	// it. Non-root ranks pass nil.
	Broadcast(ctx context.Context, root int, payload []byte) ([]byte, error)

	// Gather collects one payload per rank at root, indexed by rank.
	// Non-root ranks receive nil.
	Gather(ctx context.Context, root int, payload []byte) ([][]byte, error)

	// AllGather collects one payload per rank at every rank, indexed
	// by rank.
	AllGather(ctx context.Context, payload []byte) ([][]byte, error)
}

// Request tracks an outstanding non-blocking send.
type Request struct {
	done chan struct{}
}

func newRequest() *Request {
	return &Request{done: make(chan struct{})}
}

func (r *Request) complete() {
	close(r.done)
}

// Wait blocks until the send has been consumed or ctx is done.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAll waits on every request in order.
func WaitAll(ctx context.Context, reqs []*Request) error {
	for _, r := range reqs {
		if err := r.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// EncodeInt64 encodes v as 8 little-endian bytes.
func EncodeInt64(v int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return buf
}

// DecodeInt64 decodes a payload produced by EncodeInt64.
func DecodeInt64(p []byte) (int64, error) {
	if len(p) != 8 {
		return 0, fmt.Errorf("comm: int64 payload has %d bytes", len(p))
	}
	return int64(binary.LittleEndian.Uint64(p)), nil
}

// AllGatherInt all-gathers one int per rank, indexed by rank.
func AllGatherInt(ctx context.Context, g Group, v int) ([]int, error) {
	parts, err := g.AllGather(ctx, EncodeInt64(int64(v)))
	if err != nil {
		return nil, err
	}
	out := make([]int, len(parts))
	for i, p := range parts {
		dv, err := DecodeInt64(p)
		if err != nil {
			return nil, err
		}
		out[i] = int(dv)
	}
	return out, nil
}

// GatherInt gathers one int per rank at root, indexed by rank.
// Non-root ranks receive nil.
func GatherInt(ctx context.Context, g Group, root, v int) ([]int, error) {
	parts, err := g.Gather(ctx, root, EncodeInt64(int64(v)))
	if err != nil {
		return nil, err
	}
	if parts == nil {
		return nil, nil
	}
	out := make([]int, len(parts))
	for i, p := range parts {
		dv, err := DecodeInt64(p)
		if err != nil {
			return nil, err
		}
		out[i] = int(dv)
	}
	return out, nil
}
