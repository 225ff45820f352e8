// Package arena provides a chunked bump allocator backed by anonymous
// memory mappings.
//
// Shard buffers can be large and are replaced wholesale on every
// rebalancing round; keeping them off the Go heap avoids GC pressure.
// Individual allocations are never freed — memory is reclaimed all at
// once by Close. The construction protocol is single-threaded within a
// process, so the allocator uses a plain mutex rather than lock-free
// fast paths.
package arena

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/disttree/internal/mmap"
)

var (
	// ErrClosed is returned when allocating from a closed arena.
	ErrClosed = errors.New("arena: closed")
	// ErrAllocationFailed is returned when the backing mapping cannot be created.
	ErrAllocationFailed = errors.New("arena: allocation failed")
)

const (
	// DefaultChunkSize is the default size of a chunk (4 MiB).
	DefaultChunkSize = 4 * 1024 * 1024
	// alignment applied to every allocation.
	alignment = 8
)

// Stats tracks arena memory usage.
type Stats struct {
	ChunksAllocated uint64 // total chunks ever mapped
	BytesReserved   uint64 // memory reserved from the OS
	BytesUsed       uint64 // bytes handed out (before alignment padding)
	TotalAllocs     uint64 // cumulative allocation count
}

type chunk struct {
	mapping *mmap.Mapping
	data    []byte
	offset  int
}

// Arena is a chunked bump allocator.
type Arena struct {
	mu        sync.Mutex
	chunkSize int
	chunks    []*chunk
	stats     Stats
	closed    bool
}

// New creates an Arena with the given chunk size. A chunkSize <= 0
// selects DefaultChunkSize.
func New(chunkSize int) (*Arena, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	a := &Arena{chunkSize: chunkSize}
	if err := a.grow(chunkSize); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Arena) grow(minSize int) error {
	size := a.chunkSize
	if minSize > size {
		size = minSize
	}
	m, err := mmap.MapAnon(size)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	a.chunks = append(a.chunks, &chunk{mapping: m, data: m.Bytes()})
	a.stats.ChunksAllocated++
	a.stats.BytesReserved += uint64(size)
	return nil
}

// AllocBytes returns a zeroed byte slice of the given size. The slice
// remains valid until Close.
func (a *Arena) AllocBytes(size int) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}

	aligned := (size + alignment - 1) &^ (alignment - 1)
	curr := a.chunks[len(a.chunks)-1]
	if curr.offset+aligned > len(curr.data) {
		if err := a.grow(aligned); err != nil {
			return nil, err
		}
		curr = a.chunks[len(a.chunks)-1]
	}

	buf := curr.data[curr.offset : curr.offset+size : curr.offset+size]
	curr.offset += aligned
	a.stats.BytesUsed += uint64(size)
	a.stats.TotalAllocs++
	return buf, nil
}

// Stats returns a snapshot of the arena statistics.
func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Close unmaps all chunks. Every slice handed out becomes invalid.
// Close is idempotent.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var err error
	for _, c := range a.chunks {
		if closeErr := c.mapping.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	a.chunks = nil
	a.stats.BytesReserved = 0
	return err
}

func (a *Arena) String() string {
	s := a.Stats()
	return fmt.Sprintf(
		"Arena{chunks: %d, reserved: %.2f MB, used: %.2f MB, allocs: %d}",
		s.ChunksAllocated,
		float64(s.BytesReserved)/(1024*1024),
		float64(s.BytesUsed)/(1024*1024),
		s.TotalAllocs,
	)
}
