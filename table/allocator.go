package table

import (
	"unsafe"

	"github.com/hupe1980/disttree/internal/arena"
	"github.com/hupe1980/disttree/model"
)

// Allocator is the allocation strategy for shard buffers.
//
// Implementations hand out zeroed slices. Close releases every buffer
// the allocator produced; for the heap strategy release is deferred to
// the garbage collector and Close is a no-op.
type Allocator interface {
	AllocFloat32(n int) ([]float32, error)
	AllocPointIDs(n int) ([]model.PointID, error)
	Close() error
}

// NewHeapAllocator returns an Allocator backed by ordinary Go heap
// allocation. This is the default strategy.
func NewHeapAllocator() Allocator {
	return heapAllocator{}
}

type heapAllocator struct{}

func (heapAllocator) AllocFloat32(n int) ([]float32, error) {
	if n <= 0 {
		return nil, nil
	}
	return make([]float32, n), nil
}

func (heapAllocator) AllocPointIDs(n int) ([]model.PointID, error) {
	if n <= 0 {
		return nil, nil
	}
	return make([]model.PointID, n), nil
}

func (heapAllocator) Close() error { return nil }

// NewArenaAllocator returns an Allocator that carves shard buffers out
// of an anonymous-mapped arena, keeping them outside the Go heap.
// chunkSize <= 0 selects the arena default. Close unmaps everything;
// all tables built from the allocator become invalid.
func NewArenaAllocator(chunkSize int) (Allocator, error) {
	a, err := arena.New(chunkSize)
	if err != nil {
		return nil, err
	}
	return &arenaAllocator{arena: a}, nil
}

type arenaAllocator struct {
	arena *arena.Arena
}

func (a *arenaAllocator) AllocFloat32(n int) ([]float32, error) {
	if n <= 0 {
		return nil, nil
	}
	buf, err := a.arena.AllocBytes(n * 4)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&buf[0])), n), nil
}

func (a *arenaAllocator) AllocPointIDs(n int) ([]model.PointID, error) {
	if n <= 0 {
		return nil, nil
	}
	size := n * int(unsafe.Sizeof(model.PointID{}))
	buf, err := a.arena.AllocBytes(size)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*model.PointID)(unsafe.Pointer(&buf[0])), n), nil
}

func (a *arenaAllocator) Close() error {
	return a.arena.Close()
}
