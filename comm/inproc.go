package comm

import (
	"context"
	"fmt"
	"sync"
)

// Reserved tags for collectives, outside the application tag space.
const (
	tagBroadcast = -101
	tagGather    = -102
	tagAllGather = -103
)

// Hub connects the endpoints of an in-process group. Each participant
// obtains its endpoint with Join and runs on its own goroutine.
//
// The in-process transport is the test and single-machine vehicle for
// the protocol; the Group interface is what the protocol is written
// against.
type Hub struct {
	size      int
	endpoints []*endpoint

	barrierMu  sync.Mutex
	barrierCnt int
	barrierCh  chan struct{}
}

// NewHub creates a hub for a group of the given size.
func NewHub(size int) (*Hub, error) {
	if size < 1 {
		return nil, fmt.Errorf("comm: invalid group size %d", size)
	}
	h := &Hub{
		size:      size,
		barrierCh: make(chan struct{}),
	}
	h.endpoints = make([]*endpoint, size)
	for i := range h.endpoints {
		e := &endpoint{hub: h, rank: i, wake: make(chan struct{})}
		h.endpoints[i] = e
	}
	return h, nil
}

// Join returns the Group endpoint for the given rank.
func (h *Hub) Join(rank int) (Group, error) {
	if rank < 0 || rank >= h.size {
		return nil, fmt.Errorf("%w: %d (group size %d)", ErrInvalidRank, rank, h.size)
	}
	return h.endpoints[rank], nil
}

type envelope struct {
	from    int
	tag     int
	payload []byte
	req     *Request // nil for buffered sends
}

type endpoint struct {
	hub  *Hub
	rank int

	mu      sync.Mutex
	pending []*envelope
	wake    chan struct{} // closed and replaced whenever pending grows
}

func (e *endpoint) Rank() int { return e.rank }

func (e *endpoint) Size() int { return e.hub.size }

func (e *endpoint) checkPeer(to int) error {
	if to < 0 || to >= e.hub.size {
		return fmt.Errorf("%w: %d (group size %d)", ErrInvalidRank, to, e.hub.size)
	}
	if to == e.rank {
		return ErrSelfMessage
	}
	return nil
}

func (e *endpoint) deliver(env *envelope) {
	e.mu.Lock()
	e.pending = append(e.pending, env)
	close(e.wake)
	e.wake = make(chan struct{})
	e.mu.Unlock()
}

func (e *endpoint) Send(ctx context.Context, to, tag int, payload []byte) error {
	if err := e.checkPeer(to); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	e.hub.endpoints[to].deliver(&envelope{from: e.rank, tag: tag, payload: buf})
	return nil
}

func (e *endpoint) Isend(ctx context.Context, to, tag int, payload []byte) (*Request, error) {
	if err := e.checkPeer(to); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := newRequest()
	e.hub.endpoints[to].deliver(&envelope{from: e.rank, tag: tag, payload: payload, req: req})
	return req, nil
}

func (e *endpoint) Recv(ctx context.Context, from, tag int) ([]byte, error) {
	if err := e.checkPeer(from); err != nil {
		return nil, err
	}
	for {
		e.mu.Lock()
		for i, env := range e.pending {
			if env.from == from && env.tag == tag {
				e.pending = append(e.pending[:i], e.pending[i+1:]...)
				e.mu.Unlock()
				if env.req != nil {
					env.req.complete()
				}
				return env.payload, nil
			}
		}
		wake := e.wake
		e.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (e *endpoint) Barrier(ctx context.Context) error {
	if e.hub.size == 1 {
		return ctx.Err()
	}

	h := e.hub
	h.barrierMu.Lock()
	h.barrierCnt++
	if h.barrierCnt == h.size {
		h.barrierCnt = 0
		close(h.barrierCh)
		h.barrierCh = make(chan struct{})
		h.barrierMu.Unlock()
		return nil
	}
	release := h.barrierCh
	h.barrierMu.Unlock()

	select {
	case <-release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *endpoint) Broadcast(ctx context.Context, root int, payload []byte) ([]byte, error) {
	if root < 0 || root >= e.hub.size {
		return nil, fmt.Errorf("%w: root %d", ErrInvalidRank, root)
	}
	if e.hub.size == 1 {
		return payload, ctx.Err()
	}
	if e.rank == root {
		for to := 0; to < e.hub.size; to++ {
			if to == root {
				continue
			}
			if err := e.Send(ctx, to, tagBroadcast, payload); err != nil {
				return nil, err
			}
		}
		return payload, nil
	}
	return e.Recv(ctx, root, tagBroadcast)
}

func (e *endpoint) Gather(ctx context.Context, root int, payload []byte) ([][]byte, error) {
	if root < 0 || root >= e.hub.size {
		return nil, fmt.Errorf("%w: root %d", ErrInvalidRank, root)
	}
	if e.hub.size == 1 {
		return [][]byte{payload}, ctx.Err()
	}
	if e.rank != root {
		if err := e.Send(ctx, root, tagGather, payload); err != nil {
			return nil, err
		}
		return nil, nil
	}

	out := make([][]byte, e.hub.size)
	out[root] = payload
	for from := 0; from < e.hub.size; from++ {
		if from == root {
			continue
		}
		p, err := e.Recv(ctx, from, tagGather)
		if err != nil {
			return nil, err
		}
		out[from] = p
	}
	return out, nil
}

func (e *endpoint) AllGather(ctx context.Context, payload []byte) ([][]byte, error) {
	if e.hub.size == 1 {
		return [][]byte{payload}, ctx.Err()
	}

	// Buffered sends to every peer first, then ordered receives; the
	// buffered send keeps the exchange deadlock-free.
	for to := 0; to < e.hub.size; to++ {
		if to == e.rank {
			continue
		}
		if err := e.Send(ctx, to, tagAllGather, payload); err != nil {
			return nil, err
		}
	}

	out := make([][]byte, e.hub.size)
	out[e.rank] = payload
	for from := 0; from < e.hub.size; from++ {
		if from == e.rank {
			continue
		}
		p, err := e.Recv(ctx, from, tagAllGather)
		if err != nil {
			return nil, err
		}
		out[from] = p
	}
	return out, nil
}
